package jwt

import (
	"encoding/json"
	"errors"
	"strings"

	"mech-dispatch/internal/domain/user"
)

var (
	ErrBadAuthMsg   = errors.New("invalid auth message")
	ErrBadTokenWrap = errors.New("token must be 'Bearer <token>'")
)

// ClientAuthMessage is the first frame a websocket client must send:
// { "type":"auth", "token":"Bearer <jwt>" }. Until it arrives and validates,
// nothing else is processed on the connection.
type ClientAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Result carries the validated claims plus the raw token, which handlers
// echo back in the auth_success frame.
type Result struct {
	Claims *Claims
	Raw    string
}

// ValidateWSAuth parses the auth frame, verifies the token, and checks the
// role against the endpoint's allow list.
func ValidateWSAuth(frame []byte, mgr *Manager, allowedRoles ...user.Role) (*Result, error) {
	var msg ClientAuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, ErrBadAuthMsg
	}
	if strings.ToLower(strings.TrimSpace(msg.Type)) != "auth" {
		return nil, ErrBadAuthMsg
	}

	scheme, raw, found := strings.Cut(msg.Token, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrBadTokenWrap
	}

	_, claims, err := mgr.ParseAndValidate(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}

	return &Result{Claims: claims, Raw: strings.TrimSpace(raw)}, nil
}
