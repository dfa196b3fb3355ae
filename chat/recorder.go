package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call is one recorded platform call: the method name and its
// rendered arguments.
type Call struct {
	Method string
	Args   []interface{}
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Method, c.Args)
}

// Recorder is a Client that records calls instead of talking to a
// platform.  Tests seed Members and Errs to script admin checks and
// failures.
type Recorder struct {
	sync.Mutex

	Calls []Call

	// Members maps "chatID/userID" to a member record returned by
	// GetChatMember.  Unlisted users are plain members.
	Members map[string]*Member

	// Errs maps a method name to an error every call of that
	// method returns.
	Errs map[string]error

	// APICalls counts calls per method, including failed ones.
	APICalls map[string]int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		Members:  make(map[string]*Member),
		Errs:     make(map[string]error),
		APICalls: make(map[string]int),
	}
}

// SetAdmin marks the user as an administrator of the chat.
func (r *Recorder) SetAdmin(chatID, userID int64) {
	r.Lock()
	defer r.Unlock()
	r.Members[memberKey(chatID, userID)] = &Member{
		User:   &User{ID: userID},
		Status: "administrator",
	}
}

func memberKey(chatID, userID int64) string {
	return fmt.Sprintf("%d/%d", chatID, userID)
}

func (r *Recorder) record(method string, args ...interface{}) error {
	r.Lock()
	defer r.Unlock()
	r.APICalls[method]++
	if err := r.Errs[method]; err != nil {
		return err
	}
	r.Calls = append(r.Calls, Call{Method: method, Args: args})
	return nil
}

// CallsTo returns the recorded calls for one method.
func (r *Recorder) CallsTo(method string) []Call {
	r.Lock()
	defer r.Unlock()
	var acc []Call
	for _, c := range r.Calls {
		if c.Method == method {
			acc = append(acc, c)
		}
	}
	return acc
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string) error {
	return r.record("send_message", chatID, text)
}

func (r *Recorder) Reply(_ context.Context, msg *Message, text string) error {
	return r.record("reply", msg.ID, text)
}

func (r *Recorder) Delete(_ context.Context, msg *Message) error {
	return r.record("delete", msg.ID)
}

func (r *Recorder) Restrict(_ context.Context, chatID, userID int64, until time.Time) error {
	return r.record("restrict", chatID, userID, until)
}

func (r *Recorder) Unrestrict(_ context.Context, chatID, userID int64) error {
	return r.record("unrestrict", chatID, userID)
}

func (r *Recorder) Ban(_ context.Context, chatID, userID int64, reason string) error {
	return r.record("ban", chatID, userID, reason)
}

func (r *Recorder) Kick(_ context.Context, chatID, userID int64) error {
	return r.record("kick", chatID, userID)
}

func (r *Recorder) GetChatMember(_ context.Context, chatID, userID int64) (*Member, error) {
	r.Lock()
	defer r.Unlock()
	r.APICalls["get_chat_member"]++
	if err := r.Errs["get_chat_member"]; err != nil {
		return nil, err
	}
	if m, have := r.Members[memberKey(chatID, userID)]; have {
		return m, nil
	}
	return &Member{User: &User{ID: userID}, Status: "member"}, nil
}

func (r *Recorder) StartVerification(_ context.Context, chatID, userID int64) error {
	return r.record("start_verification", chatID, userID)
}
