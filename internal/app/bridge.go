package app

import (
	"github.com/agent-racer/hexboard/internal/client"
	tea "github.com/charmbracelet/bubbletea"
)

// Transport is the part of *client.Transport the UI drives.
type Transport interface {
	Connect(endpoint string)
	Disconnect()
	State() client.State
	Send(msgType client.MessageType, payload any) bool
	OnMessage(fn func(client.Message)) (unsubscribe func())
	OnConnection(fn func(connected bool)) (unsubscribe func())
}

// Sender delivers messages into the event loop. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// InboundMsg carries a decoded server message into Update.
type InboundMsg struct{ Message client.Message }

// ConnectionMsg reports a transport connection change.
type ConnectionMsg struct{ Connected bool }

// Attach forwards transport callbacks into the event loop so reconciler
// state is only ever touched from Update. The returned func detaches.
func Attach(s Sender, t Transport) (detach func()) {
	offMsg := t.OnMessage(func(m client.Message) { s.Send(InboundMsg{Message: m}) })
	offConn := t.OnConnection(func(c bool) { s.Send(ConnectionMsg{Connected: c}) })
	return func() {
		offMsg()
		offConn()
	}
}
