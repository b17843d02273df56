package chat

import "testing"

func TestPairIDCommutative(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"a", "b", "a_b"},
		{"b", "a", "a_b"},
		{"me", "you", "me_you"},
		{"zUser", "aUser", "aUser_zUser"},
		{"same", "same", "same_same"},
		{"", "x", "_x"},
	}
	for _, c := range cases {
		if got := PairID(c.a, c.b); got != c.want {
			t.Errorf("PairID(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
		if got, rev := PairID(c.a, c.b), PairID(c.b, c.a); got != rev {
			t.Errorf("PairID not commutative for (%q, %q): %q != %q", c.a, c.b, got, rev)
		}
	}
}

func TestMessageValidate(t *testing.T) {
	msg := Message{ChatID: "a_b", SenderID: "a", ReceiverID: "b", Content: "hi"}
	if err := msg.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	blank := msg
	blank.Content = "   \t\n"
	if err := blank.Validate(); err != ErrBlankContent {
		t.Errorf("blank content: got %v, want ErrBlankContent", err)
	}

	noSender := msg
	noSender.SenderID = ""
	if err := noSender.Validate(); err == nil {
		t.Error("message without sender id passed validation")
	}
}

func TestEventValidate(t *testing.T) {
	msg := &Message{ChatID: "a_b", SenderID: "a", ReceiverID: "b", Content: "hi"}

	cases := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{"subscribe with chat id", Event{Kind: EventSubscribe, ChatID: "a_b"}, false},
		{"subscribe without chat id", Event{Kind: EventSubscribe}, true},
		{"send with message", Event{Kind: EventSend, Message: msg}, false},
		{"send without message", Event{Kind: EventSend}, true},
		{"receive with message", Event{Kind: EventReceive, Message: msg}, false},
		{"unknown kind", Event{Kind: "ping"}, true},
	}
	for _, c := range cases {
		err := c.ev.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: got err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}
