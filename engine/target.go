package engine

// Target-user disambiguation for administrative actions, shared by
// every action adapter: an explicit user_id argument wins, then the
// replied-to message's author, then the triggering user.

import (
	"strconv"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/interp"
	"github.com/groupwarden/groupwarden/resolve"
)

// TargetUser resolves the user an administrative action applies to.
// explicit is the caller's user_id argument; Null (or 0) falls
// through to the reply author and then the triggering user.
func TargetUser(ev *chat.Event, explicit interp.Value) (int64, error) {
	switch explicit.Kind {
	case interp.KindNull:
	case interp.KindNumber:
		if n := int64(explicit.Num); n != 0 {
			return n, nil
		}
	case interp.KindString:
		if explicit.Str != "" {
			n, err := strconv.ParseInt(explicit.Str, 10, 64)
			if err != nil {
				return 0, &interp.RuntimeError{Msg: "bad user id '" + explicit.Str + "'"}
			}
			return n, nil
		}
	default:
		return 0, &interp.RuntimeError{Msg: "user id must be a number"}
	}

	if t := resolve.EffectiveTarget(ev); t != 0 {
		return t, nil
	}
	return 0, &interp.RuntimeError{Msg: "no target user for action"}
}
