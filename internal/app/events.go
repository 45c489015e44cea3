package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/event"
)

// StateMsg asks the model to re-read a section of reconciler state.
type StateMsg struct{ Section event.Section }

// NoticeMsg carries a transient user-facing message.
type NoticeMsg struct{ Notice event.Notice }

// SessionExpiredMsg is delivered when the backend rejected the credential.
type SessionExpiredMsg struct{}

// Events forwards bus events into the Bubble Tea loop. Bus handlers run on
// the publisher's goroutine, which may be the program's own update loop, so
// they never block: when the buffer is full the event is dropped. Dropping
// is safe because every StateMsg re-reads the whole snapshot.
type Events struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
	subs []*bus.Subscription
}

// Subscribe registers the forwarding handlers on b.
func Subscribe(b *bus.Bus) *Events {
	e := &Events{
		ch:   make(chan tea.Msg, 128),
		done: make(chan struct{}),
	}
	e.subs = []*bus.Subscription{
		bus.On(b, func(ev event.StateChanged) { e.forward(StateMsg{Section: ev.Section}) }),
		bus.On(b, func(ev event.Notice) { e.forward(NoticeMsg{Notice: ev}) }),
		bus.On(b, func(event.SessionExpired) { e.forward(SessionExpiredMsg{}) }),
	}
	return e
}

func (e *Events) forward(msg tea.Msg) {
	select {
	case e.ch <- msg:
	case <-e.done:
	default:
	}
}

// Next returns a command that waits for the next event. The model re-arms
// it after handling each one.
func (e *Events) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.done:
			return nil
		}
	}
}

// Close drops the subscriptions and releases any pending Next.
func (e *Events) Close() {
	e.once.Do(func() {
		for _, s := range e.subs {
			s.Unsubscribe()
		}
		close(e.done)
	})
}
