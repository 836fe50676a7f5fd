package auth

import (
	"net/http"
	"net/url"

	"conversa/internal/models"
)

// LoginPath is where anonymous visitors of guarded pages are sent.
const LoginPath = "/login"

type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeLoading
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "allow"
	}
}

// Decision is what a guarded route renders.
type Decision struct {
	Outcome Outcome
	// Location is the redirect target, set only for OutcomeRedirect.
	// It carries the originating location in the "from" query parameter.
	Location string
}

// Decide maps an auth state and the requested location to a rendering.
// While loading the user is ignored.
func Decide(state models.AuthState, from string) Decision {
	switch {
	case state.Loading:
		return Decision{Outcome: OutcomeLoading}
	case state.User == nil:
		return Decision{
			Outcome:  OutcomeRedirect,
			Location: LoginPath + "?" + url.Values{"from": {from}}.Encode(),
		}
	default:
		return Decision{Outcome: OutcomeAllow}
	}
}

// Guard applies Decide to every request: loading renders the loading
// handler, anonymous visitors are redirected to the login page and signed in
// users reach next with their session in the request context.
func Guard(reader StateReader, loading, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, session := reader.Resolve(r.Context(), RequestToken(r))

		d := Decide(state, r.URL.RequestURI())
		switch d.Outcome {
		case OutcomeLoading:
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Cache-Control", "no-store")
			loading.ServeHTTP(w, r)
		case OutcomeRedirect:
			http.Redirect(w, r, d.Location, http.StatusFound)
		default:
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		}
	})
}
