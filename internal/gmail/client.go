package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes: read threads and send replies. Nothing is modified or deleted.
var scopes = []string{
	gmailv1.GmailReadonlyScope,
	gmailv1.GmailSendScope,
}

const (
	credentialsFile = "client_secret.json"
	tokenFile       = "token.json"
)

// Prompt carries the interactive part of the OAuth flow. AuthURLs receives the
// consent URL; Codes may deliver a pasted code or redirect URL when the
// loopback redirect cannot reach us. A nil Prompt uses stdin/stderr.
type Prompt struct {
	AuthURLs chan<- string
	Codes    <-chan string
}

// NewService returns an authorized Gmail service using
// <configDir>/client_secret.json and the token cached in <configDir>/token.json.
// A missing or rejected token starts the browser consent flow.
func NewService(ctx context.Context, configDir string, prompt *Prompt) (*gmailv1.Service, error) {
	cfg, err := oauthConfig(configDir)
	if err != nil {
		return nil, err
	}

	tokPath := filepath.Join(configDir, tokenFile)
	if tok, err := readToken(tokPath); err == nil {
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
		if err == nil {
			_, err = svc.Users.GetProfile(me).Context(ctx).Do()
		}
		if err == nil {
			return svc, nil
		}
		// Rejected token; drop it and ask again.
		_ = os.Remove(tokPath)
	}

	tok, err := authorize(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokPath, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// ForgetToken removes the cached token so the next NewService asks again.
func ForgetToken(configDir string) error {
	err := os.Remove(filepath.Join(configDir, tokenFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func oauthConfig(configDir string) (*oauth2.Config, error) {
	credPath := filepath.Join(configDir, credentialsFile)
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// saveToken writes through a temp file so a crash never leaves a torn token.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loopback serves one OAuth redirect on 127.0.0.1 and hands the code to codes.
type loopback struct {
	srv      *http.Server
	redirect string
	codes    chan string
}

func startLoopback() (*loopback, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	lb := &loopback{
		redirect: fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port),
		codes:    make(chan string, 1),
	}
	mux := http.NewServeMux()
	lb.srv = &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		select {
		case lb.codes <- code:
		default:
		}
	})
	go func() { _ = lb.srv.Serve(ln) }()
	return lb, nil
}

func (lb *loopback) close() {
	_ = lb.srv.Shutdown(context.Background())
}

// authorize runs the consent flow. The code arrives through the loopback
// redirect, through prompt.Codes, or (without a prompt) from stdin after a
// timeout.
func authorize(ctx context.Context, cfg *oauth2.Config, prompt *Prompt) (*oauth2.Token, error) {
	lb, err := startLoopback()
	if err != nil {
		return nil, err
	}
	defer lb.close()

	c := *cfg
	c.RedirectURL = lb.redirect
	authURL := c.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	var pasted <-chan string
	var timeout <-chan time.Time
	if prompt != nil && prompt.AuthURLs != nil {
		select {
		case prompt.AuthURLs <- authURL:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		pasted = prompt.Codes
	} else {
		fmt.Fprintln(os.Stderr, "Open this URL to authorize strathyterm:")
		fmt.Fprintln(os.Stderr, authURL)
		fmt.Fprintf(os.Stderr, "Waiting for redirect on %s …\n", lb.redirect)
		timeout = time.After(2 * time.Minute)
	}

	var code string
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case code = <-lb.codes:
	case input := <-pasted:
		if code, err = parseCode(input); err != nil {
			return nil, err
		}
	case <-timeout:
		fmt.Fprintln(os.Stderr, "No redirect received. Paste the code or the full redirect URL, then press Enter.")
		fmt.Fprint(os.Stderr, "> ")
		input, err := readLine(os.Stdin)
		if err != nil {
			return nil, err
		}
		if code, err = parseCode(input); err != nil {
			return nil, err
		}
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// parseCode accepts either the bare authorization code or the redirect URL
// that carries it.
func parseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read auth code: %w", err)
		}
		return "", errors.New("empty authorization code")
	}
	return sc.Text(), nil
}
