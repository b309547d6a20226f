package httpresp

const (
	ErrUnauthorized       = "unauthorized"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrForbidden          = "forbidden"
	ErrInsufficientRole   = "insufficient permissions"
	ErrOrderAccessDenied  = "no access to this order"
	ErrKeyRequired        = "key is required"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type PresenceResponse struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewURLResponse(url string) URLResponse {
	return URLResponse{URL: url}
}

func NewPresenceResponse(onlineUserIDs []string) PresenceResponse {
	if onlineUserIDs == nil {
		onlineUserIDs = []string{}
	}
	return PresenceResponse{OnlineUserIDs: onlineUserIDs}
}
