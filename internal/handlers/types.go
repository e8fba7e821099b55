package handlers

// CheckRequest is the request body for a remote rate limit check.
type CheckRequest struct {
	Body struct {
		Key         string `doc:"Limiter key, e.g. signup:203.0.113.7" example:"signup:203.0.113.7" json:"key"         minLength:"1" maxLength:"512"`
		MaxRequests int64  `doc:"Requests allowed per window"         example:"5"                   json:"maxRequests" minimum:"1" maximum:"1000000"`
		WindowMs    int64  `doc:"Window length in milliseconds"       example:"60000"               json:"windowMs"    minimum:"1" maximum:"31622400000"`
	}
}

// CheckResponse reports the decision for a remote rate limit check.
type CheckResponse struct {
	Body struct {
		Allowed   bool  `doc:"Whether the request may proceed"           json:"allowed"`
		Remaining int64 `doc:"Requests left in the current window"       json:"remaining"`
		ResetTime int64 `doc:"Epoch milliseconds when the window ends"    json:"resetTime"`
	}
}

// EntryRequest looks up a stored rate limit entry.
type EntryRequest struct {
	Key string `doc:"Limiter key" example:"signup:203.0.113.7" path:"key"`
}

// EntryResponse is the stored state of a rate limit entry.
type EntryResponse struct {
	Body struct {
		Key       string `json:"key"`
		Count     int64  `doc:"Requests counted in the current window" json:"count"`
		ResetTime int64  `doc:"Epoch milliseconds when the window ends" json:"resetTime"`
		ExpireAt  int64  `doc:"Epoch seconds when the store drops the row" json:"expireAt"`
	}
}

// PingResponse is the response of the sample protected endpoint.
type PingResponse struct {
	Body struct {
		Message   string `example:"pong" json:"message"`
		RequestID string `json:"requestId,omitempty"`
	}
}
