package session

// Identity is the authenticated user record returned by the identity
// endpoint.
type Identity struct {
	UserNo      int64  `json:"userNo"`
	Nickname    string `json:"nickname"`
	SocialEmail string `json:"socialEmail"`
	CreatedAt   string `json:"createdAt"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// broadcastPayload is the cross-process identity sync envelope. It carries
// identity state only; credentials are intentionally never shared.
type broadcastPayload struct {
	State broadcastState `json:"state"`
}

type broadcastState struct {
	Identity *Identity `json:"identity"`
}
