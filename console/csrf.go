package console

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
	"golang.org/x/crypto/hkdf"
)

const (
	csrfLocalsKey  = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfClientHdr  = "User-Agent"
	csrfNonceSize  = 16
	csrfKeyInfo    = "fleet-console-forms"
)

var (
	errCSRFMissing  = errors.New("CSRF token missing")
	errCSRFMismatch = errors.New("CSRF token mismatch")
	errCSRFExpired  = errors.New("CSRF token expired")
)

var csrfSafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}

// formGuard issues and checks the tokens of the console's own forms.
// Tokens are stateless: an HMAC over a timestamp, a nonce and the client
// user agent.
type formGuard struct {
	key     []byte
	maxAge  time.Duration
	onError func(router.Context, error) error
}

// newFormGuard derives the signing key from secret. An empty secret
// yields a random key.
func newFormGuard(secret []byte, maxAge time.Duration) (*formGuard, error) {
	var source io.Reader = rand.Reader
	if len(secret) > 0 {
		source = hkdf.New(sha256.New, secret, nil, []byte(csrfKeyInfo))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(source, key); err != nil {
		return nil, fmt.Errorf("csrf: unable to initialize key: %w", err)
	}
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}

	return &formGuard{key: key, maxAge: maxAge, onError: defaultCSRFError}, nil
}

func (g *formGuard) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			client := ctx.Header(csrfClientHdr)
			token, err := g.issue(client)
			if err != nil {
				return g.onError(ctx, err)
			}
			ctx.Locals(csrfLocalsKey, token)

			if slices.Contains(csrfSafeMethods, strings.ToUpper(ctx.Method())) {
				return next(ctx)
			}

			if err := g.verify(submittedToken(ctx), client); err != nil {
				return g.onError(ctx, err)
			}

			return next(ctx)
		}
	}
}

type tokenForm struct {
	Token string `form:"_token" json:"_token"`
}

// submittedToken reads the form field first and falls back to the header
func submittedToken(ctx router.Context) string {
	form := new(tokenForm)
	if err := ctx.Bind(form); err == nil && form.Token != "" {
		return form.Token
	}
	return ctx.Header(csrfHeaderName)
}

func (g *formGuard) issue(client string) (string, error) {
	nonce := make([]byte, csrfNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	payload := fmt.Sprintf("%d:%s:%s", time.Now().UTC().Unix(), hex.EncodeToString(nonce), client)
	token := payload + ":" + hex.EncodeToString(g.sign(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func (g *formGuard) verify(token, client string) error {
	if token == "" {
		return errCSRFMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return errCSRFMismatch
	}

	// the client part may carry colons, the signature is always last
	raw := string(decoded)
	cut := strings.LastIndexByte(raw, ':')
	if cut < 0 {
		return errCSRFMismatch
	}
	payload, sigHex := raw[:cut], raw[cut+1:]

	signature, err := hex.DecodeString(sigHex)
	if err != nil || !hmac.Equal(signature, g.sign(payload)) {
		return errCSRFMismatch
	}

	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || !hmac.Equal([]byte(parts[2]), []byte(client)) {
		return errCSRFMismatch
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return errCSRFMismatch
	}
	if time.Now().UTC().After(time.Unix(issued, 0).Add(g.maxAge)) {
		return errCSRFExpired
	}

	return nil
}

func (g *formGuard) sign(payload string) []byte {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func defaultCSRFError(ctx router.Context, err error) error {
	if errors.Is(err, errCSRFMissing) {
		return ctx.Status(router.StatusBadRequest).SendString(err.Error())
	}
	return ctx.Status(router.StatusForbidden).SendString(err.Error())
}

func csrfToken(ctx router.Context) string {
	token, _ := ctx.Locals(csrfLocalsKey).(string)
	return token
}
