package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/launchcart/widgets/internal/phx"
)

const (
	cartTopic = "launch_cart"
	formTopic = "launch_form"

	intentPrefix = "lvs_evt:"
	eventRefresh = "lvs_refresh"
)

func (s *Server) handleFrame(c *client, msg phx.Message) {
	if msg.Topic == phx.TopicPhoenix {
		if msg.Event == phx.EventHeartbeat {
			s.hub.reply(c, msg, phx.ReplyStatusOK, struct{}{})
		}
		return
	}

	switch msg.Event {
	case phx.EventJoin:
		s.handleJoin(c, msg)
		return
	case phx.EventLeave:
		c.unsubscribe(msg.Topic)
		s.hub.reply(c, msg, phx.ReplyStatusOK, struct{}{})
		return
	}

	sub, ok := c.subscription(msg.Topic)
	if !ok || sub.joinRef != msg.JoinRef {
		s.hub.reply(c, msg, phx.ReplyStatusError, map[string]string{"reason": "unmatched topic"})
		return
	}

	var err error
	switch kind, _ := topicKind(msg.Topic); kind {
	case cartTopic:
		err = s.handleCartEvent(c, msg, sub)
	case formTopic:
		err = s.handleFormEvent(c, msg, sub)
	}
	if err != nil {
		s.log.Info("intent rejected", "topic", msg.Topic, "event", msg.Event, "error", err)
		s.hub.reply(c, msg, phx.ReplyStatusError, map[string]string{"reason": err.Error()})
		return
	}
	s.hub.reply(c, msg, phx.ReplyStatusOK, struct{}{})
}

func (s *Server) handleJoin(c *client, msg phx.Message) {
	kind, id := topicKind(msg.Topic)
	if id == "" {
		s.hub.reply(c, msg, phx.ReplyStatusError, map[string]string{"reason": "unmatched topic"})
		return
	}

	switch kind {
	case cartTopic:
		var params struct {
			CartID string `json:"cart_id"`
		}
		if err := json.Unmarshal(msg.Payload, &params); err != nil {
			s.log.Debug("malformed join params", "topic", msg.Topic, "error", err)
		}

		st, created := s.carts.Resume(id, params.CartID)
		c.subscribe(msg.Topic, &subscription{joinRef: msg.JoinRef, cartID: st.ID})
		s.hub.reply(c, msg, phx.ReplyStatusOK, struct{}{})
		s.pushCartState(c, msg.Topic, msg.JoinRef, st)
		if created {
			s.log.Info("cart created", "store", id, "cart_id", st.ID)
			s.hub.push(c, msg.Topic, msg.JoinRef, "cart_created", map[string]string{"cart_id": st.ID})
		} else {
			s.log.Info("cart resumed", "store", id, "cart_id", st.ID)
		}

	case formTopic:
		c.subscribe(msg.Topic, &subscription{joinRef: msg.JoinRef})
		s.hub.reply(c, msg, phx.ReplyStatusOK, struct{}{})
		s.hub.push(c, msg.Topic, msg.JoinRef, "state:change", formStatePayload(s.forms.Get(id)))

	default:
		s.hub.reply(c, msg, phx.ReplyStatusError, map[string]string{"reason": "unmatched topic"})
	}
}

func (s *Server) pushCartState(c *client, topic, joinRef string, st CartState) {
	s.hub.push(c, topic, joinRef, "state:change", map[string]any{
		"state":   map[string]any{"cart": st.Cart},
		"version": st.Version,
	})
}

func formStatePayload(st FormState) map[string]any {
	state := map[string]any{"complete": st.Complete}
	if st.Result != "" {
		state["result"] = st.Result
	}
	return map[string]any{"state": state, "version": st.Version}
}

// broadcastFormState tells every follower of a form about its new state.
func (s *Server) broadcastFormState(formID string, st FormState) {
	s.hub.broadcastTopic(formTopic+":"+formID, "state:change", formStatePayload(st))
}

// broadcastCartState tells every follower of a cart about its new state.
func (s *Server) broadcastCartState(st CartState) {
	s.hub.broadcastCart(st.ID, func(*subscription) (string, any) {
		if s.patches {
			return "state:patch", map[string]any{
				"patch":   []map[string]any{{"op": "replace", "path": "/cart", "value": st.Cart}},
				"version": st.Version,
			}
		}
		return "state:change", map[string]any{
			"state":   map[string]any{"cart": st.Cart},
			"version": st.Version,
		}
	})
}

func (s *Server) handleCartEvent(c *client, msg phx.Message, sub *subscription) error {
	if msg.Event == eventRefresh {
		st, ok := s.carts.Get(sub.cartID)
		if !ok {
			return ErrCartNotFound
		}
		s.pushCartState(c, msg.Topic, sub.joinRef, st)
		return nil
	}

	name, ok := strings.CutPrefix(msg.Event, intentPrefix)
	if !ok {
		return fmt.Errorf("unknown event %q", msg.Event)
	}
	var p struct {
		ItemID    string `json:"item_id"`
		ProductID string `json:"product_id"`
		ReturnURL string `json:"return_url"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}

	var (
		st  CartState
		err error
	)
	switch name {
	case "add_cart_item":
		st, err = s.carts.Add(sub.cartID, p.ProductID)
	case "remove_cart_item":
		st, err = s.carts.Remove(sub.cartID, p.ItemID)
	case "increase_quantity":
		st, err = s.carts.Adjust(sub.cartID, p.ItemID, 1)
	case "decrease_quantity":
		st, err = s.carts.Adjust(sub.cartID, p.ItemID, -1)
	case "checkout":
		if err := s.carts.Checkout(sub.cartID, p.ReturnURL); err != nil {
			return err
		}
		s.log.Info("checkout started", "cart_id", sub.cartID)
		s.hub.push(c, msg.Topic, sub.joinRef, "checkout_redirect", map[string]string{
			"checkout_url": c.base + "/checkout/" + sub.cartID,
		})
		return nil
	default:
		return fmt.Errorf("unknown intent %q", name)
	}
	if err != nil {
		return err
	}
	s.broadcastCartState(st)
	return nil
}

var errInvalidEmail = errors.New("email is invalid")

func (s *Server) handleFormEvent(c *client, msg phx.Message, sub *subscription) error {
	if msg.Event != intentPrefix+"launch-form-submit" {
		return fmt.Errorf("unknown event %q", msg.Event)
	}
	var fields map[string]any
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		return fmt.Errorf("decoding submission: %w", err)
	}

	if email, ok := fields["email"]; ok && !strings.Contains(fmt.Sprint(email), "@") {
		s.hub.push(c, msg.Topic, sub.joinRef, "livestate-error", map[string]string{
			"type":    "validation",
			"message": errInvalidEmail.Error(),
			"field":   "email",
		})
		return nil
	}

	result := "<p>Thanks for signing up! We'll be in touch.</p>"
	if name, ok := fields["name"].(string); ok && strings.TrimSpace(name) != "" {
		result = fmt.Sprintf("<p>Thanks, <strong>%s</strong>! We'll be in touch.</p>", html.EscapeString(strings.TrimSpace(name)))
	}
	_, formID := topicKind(msg.Topic)
	s.broadcastFormState(formID, s.forms.Complete(formID, result))
	return nil
}
