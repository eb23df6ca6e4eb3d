package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/botarena/botarena/internal/claims"
)

const defaultServer = "http://localhost:8080"

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "botarena",
		Usage:   "Publish and claim agent profiles on a BotArena server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   defaultServer,
				EnvVars: []string{"BOTARENA_SERVER"},
				Usage:   "BotArena server base URL",
			},
		},
		Commands: []*cli.Command{
			publishCmd(),
			listCmd(),
			getCmd(),
			claimCmd(),
			verifyCmd(),
			statusCmd(),
		},
	}
}

// publishCmd creates the publish command.
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a new agent profile (reads the profile JSON from stdin)",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return fmt.Errorf("profile JSON must be piped via stdin")
			}
			body, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}

			client := newAPIClient(c.String("server"))
			result, err := client.post("/api/profiles", json.RawMessage(body))
			if err != nil {
				return err
			}
			return outputJSON(result)
		},
	}
}

// listCmd creates the list command.
func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List published profiles",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sort", Value: "updated_at", Usage: "Sort order: updated_at|name"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			query := url.Values{}
			query.Set("sort", c.String("sort"))
			query.Set("limit", fmt.Sprintf("%d", c.Int("limit")))
			query.Set("offset", fmt.Sprintf("%d", c.Int("offset")))

			client := newAPIClient(c.String("server"))
			result, err := client.get("/api/profiles?" + query.Encode())
			if err != nil {
				return err
			}
			return outputJSON(result)
		},
	}
}

// getCmd creates the get command.
func getCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch a profile by slug",
		ArgsUsage: "<slug>",
		Action: func(c *cli.Context) error {
			slug := c.Args().First()
			if slug == "" {
				return fmt.Errorf("slug is required")
			}

			client := newAPIClient(c.String("server"))
			result, err := client.get("/api/profiles/" + url.PathEscape(slug))
			if err != nil {
				return err
			}
			return outputJSON(result)
		},
	}
}

// claimCmd creates the claim command.
func claimCmd() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Start an ownership claim for a profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "slug", Required: true, Usage: "Profile slug"},
			&cli.StringFlag{Name: "gist", Required: true, Usage: "GitHub gist URL that will hold the verification code"},
			&cli.StringFlag{Name: "handle", Usage: "Your GitHub handle (default: derived from the gist URL)"},
		},
		Action: func(c *cli.Context) error {
			handle := c.String("handle")
			if handle == "" {
				derived, _, err := claims.ParseGistURL(c.String("gist"))
				if err != nil {
					return fmt.Errorf("cannot derive handle from gist URL: %w", err)
				}
				handle = derived
			}

			client := newAPIClient(c.String("server"))
			result, err := client.post("/api/claim/initiate", map[string]string{
				"slug":         c.String("slug"),
				"gistUrl":      c.String("gist"),
				"githubHandle": handle,
			})
			if err != nil {
				return err
			}

			var initiated struct {
				VerificationCode string    `json:"verificationCode"`
				ExpiresAt        time.Time `json:"expiresAt"`
			}
			if err := json.Unmarshal(result, &initiated); err != nil {
				return fmt.Errorf("unexpected server response: %w", err)
			}

			fmt.Printf("Verification code: %s\n", initiated.VerificationCode)
			fmt.Printf("Expires at:        %s\n", initiated.ExpiresAt.Format(time.RFC3339))
			fmt.Println()
			fmt.Printf("Paste the code into your gist (%s), then run:\n", c.String("gist"))
			fmt.Printf("  botarena verify --slug %s --handle %s\n", c.String("slug"), handle)
			return nil
		},
	}
}

// verifyCmd creates the verify command.
func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Complete a pending ownership claim",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "slug", Required: true, Usage: "Profile slug"},
			&cli.StringFlag{Name: "handle", Required: true, Usage: "Your GitHub handle"},
		},
		Action: func(c *cli.Context) error {
			client := newAPIClient(c.String("server"))
			result, err := client.post("/api/claim/verify", map[string]string{
				"slug":         c.String("slug"),
				"githubHandle": c.String("handle"),
			})
			if err != nil {
				return err
			}

			var verified struct {
				Owner     string    `json:"owner"`
				ClaimedAt time.Time `json:"claimedAt"`
			}
			if err := json.Unmarshal(result, &verified); err != nil {
				return fmt.Errorf("unexpected server response: %w", err)
			}

			fmt.Printf("Profile %s is now owned by %s (claimed %s)\n",
				c.String("slug"), verified.Owner, verified.ClaimedAt.Format(time.RFC3339))
			return nil
		},
	}
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show whether a profile has a pending claim",
		ArgsUsage: "<slug>",
		Action: func(c *cli.Context) error {
			slug := c.Args().First()
			if slug == "" {
				return fmt.Errorf("slug is required")
			}

			client := newAPIClient(c.String("server"))
			result, err := client.get("/api/claim/status/" + url.PathEscape(slug))
			if err != nil {
				return err
			}
			return outputJSON(result)
		},
	}
}

// apiClient is a thin HTTP client for the BotArena API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *apiClient) get(path string) (json.RawMessage, error) {
	resp, err := a.http.Get(a.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return decodeEnvelope(resp)
}

func (a *apiClient) post(path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Post(a.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return decodeEnvelope(resp)
}

// envelope is the response wrapper every API endpoint uses. Fields mirrors
// the server's per-field validation errors.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Fields  []fieldError    `json:"fields"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// decodeEnvelope unwraps an API response, turning error envelopes into
// Go errors.
func decodeEnvelope(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("server returned %s with unreadable body", resp.Status)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		if len(env.Fields) > 0 {
			details := make([]string, 0, len(env.Fields))
			for _, f := range env.Fields {
				details = append(details, fmt.Sprintf("%s: %s", f.Field, f.Message))
			}
			msg = fmt.Sprintf("%s (%s)", msg, strings.Join(details, "; "))
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return env.Data, nil
}

// outputJSON pretty-prints result to stdout.
func outputJSON(v json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		os.Stdout.Write(v)
		fmt.Println()
		return nil
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(os.Stdout)
	return err
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
