package server

import (
	"encoding/json"

	"github.com/pkg/errors"

	"discoball-controller/internal/core"
)

// MailboxHandler applies client commands to the command mailbox.
type MailboxHandler struct {
	Mailbox *core.Mailbox
	Store   *core.StatusStore
}

// Handle implements CommandHandler.
//
//	{"type":"write","payload":{"pin":"V1","value":1}}
//	{"type":"get_status"}
func (h MailboxHandler) Handle(cmd Command) (*Message, error) {
	switch cmd.Type {
	case "write":
		var p WritePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, errors.Wrap(err, "invalid write payload")
		}
		if err := h.Mailbox.Write(core.Pin(p.Pin), p.Value); err != nil {
			return nil, err
		}
		return nil, nil
	case "get_status":
		msg := NewMessage(string(core.StatusEvent), h.Store.Clone())
		return &msg, nil
	default:
		return nil, errors.Errorf("unknown command type %q", cmd.Type)
	}
}
