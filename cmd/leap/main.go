package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/NeveIsa/LEAP2/internal/auth"
	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/server"
	"github.com/NeveIsa/LEAP2/pkg/client"

	// Built-in function sets register themselves.
	_ "github.com/NeveIsa/LEAP2/funcs"
)

// Config is the persisted CLI session.
type Config struct {
	BaseURL       string `json:"base_url"`
	SessionCookie string `json:"session_cookie"` // "admin_session=abc..."
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".leap")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "cli_config.json"), nil
}

func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func requireAuthConfig() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" || cfg.SessionCookie == "" {
		return nil, fmt.Errorf("not logged in, run 'leap login' first")
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "leap",
	Short: "LEAP server administration CLI",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ---- Login ----

func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	baseURL := fs.String("base-url", "http://localhost:9000", "LEAP server base URL")
	password := fs.String("password", "", "Admin password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	if pw == "" {
		fmt.Fprint(os.Stderr, "Admin password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		pw = string(raw)
	}

	body, err := json.Marshal(map[string]string{"password": pw})
	if err != nil {
		return err
	}

	url := strings.TrimRight(*baseURL, "/") + "/login"
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed: %s", strings.TrimSpace(string(msg)))
	}

	var sessionCookie string
	for _, c := range resp.Cookies() {
		if c.Name == "admin_session" {
			sessionCookie = c.Name + "=" + c.Value
			break
		}
	}
	if sessionCookie == "" {
		return fmt.Errorf("no admin_session cookie received")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.BaseURL = strings.TrimRight(*baseURL, "/")
	cfg.SessionCookie = sessionCookie
	if err := saveConfig(cfg); err != nil {
		return err
	}

	fmt.Println("Logged in.")
	return nil
}

// adminRequest runs one authenticated request and decodes the response.
func adminRequest(cfg *Config, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cookie", cfg.SessionCookie)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var detail struct {
			Detail string `json:"detail"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
			msg = detail.Detail
		}
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ---- set-password ----

func cmdSetPassword(args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ExitOnError)
	root := fs.String("root", ".", "LEAP project root")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "New admin password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	creds, err := auth.HashPassword(string(raw))
	if err != nil {
		return err
	}

	path := filepath.Join(*root, "config", "admin_credentials.json")
	if err := auth.SaveCredentials(path, creds); err != nil {
		return err
	}

	fmt.Printf("Credentials written to %s\n", path)
	return nil
}

// ---- new ----

const newReadmeTemplate = `---
display_name: %s
description: Describe the experiment here.
version: 0.1.0
entry_point: dashboard.html
require_registration: true
---

# %s

Edit this README. The YAML frontmatter above configures the experiment.
`

const newDashboardTemplate = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
  <h1>%s</h1>
  <p>Replace this placeholder dashboard.</p>
</body>
</html>
`

func cmdNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	root := fs.String("root", ".", "LEAP project root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: leap new <name>")
	}

	name := fs.Arg(0)
	if !experiment.ValidName(name) {
		return fmt.Errorf("invalid experiment name %q: must match ^[a-z0-9][a-z0-9_-]*$", name)
	}

	dir := filepath.Join(*root, "experiments", name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("experiment %q already exists at %s", name, dir)
	}

	files := map[string]string{
		"README.md":         fmt.Sprintf(newReadmeTemplate, name, name),
		"ui/dashboard.html": fmt.Sprintf(newDashboardTemplate, name, name),
	}
	for rel, contents := range files {
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(contents), 0o644); err != nil {
			return err
		}
	}

	fmt.Printf("Experiment scaffolded at %s\n", dir)
	return nil
}

// ---- student ----

func cmdStudent(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: leap student <add|list|rm> [flags]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return studentAdd(rest)
	case "list":
		return studentList(rest)
	case "rm":
		return studentRm(rest)
	default:
		return fmt.Errorf("unknown student subcommand %q", sub)
	}
}

func studentAdd(args []string) error {
	fs := flag.NewFlagSet("student add", flag.ExitOnError)
	exp := fs.String("exp", "", "Experiment name")
	id := fs.String("id", "", "Student id")
	name := fs.String("name", "", "Student name")
	email := fs.String("email", "", "Student email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exp == "" || *id == "" || *name == "" {
		return fmt.Errorf("--exp, --id and --name are required")
	}

	cfg, err := requireAuthConfig()
	if err != nil {
		return err
	}

	payload := map[string]string{"student_id": *id, "name": *name, "email": *email}
	if err := adminRequest(cfg, http.MethodPost, "/exp/"+*exp+"/admin/add-student", payload, nil); err != nil {
		return err
	}

	fmt.Printf("Student %s registered in %s\n", *id, *exp)
	return nil
}

func studentList(args []string) error {
	fs := flag.NewFlagSet("student list", flag.ExitOnError)
	exp := fs.String("exp", "", "Experiment name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exp == "" {
		return fmt.Errorf("--exp is required")
	}

	cfg, err := requireAuthConfig()
	if err != nil {
		return err
	}

	var out struct {
		Students []struct {
			StudentID string `json:"student_id"`
			Name      string `json:"name"`
			Email     string `json:"email"`
		} `json:"students"`
	}
	if err := adminRequest(cfg, http.MethodGet, "/exp/"+*exp+"/admin/students", nil, &out); err != nil {
		return err
	}

	if len(out.Students) == 0 {
		fmt.Println("No students registered.")
		return nil
	}
	for _, s := range out.Students {
		line := s.StudentID + "\t" + s.Name
		if s.Email != "" {
			line += "\t" + s.Email
		}
		fmt.Println(line)
	}
	return nil
}

func studentRm(args []string) error {
	fs := flag.NewFlagSet("student rm", flag.ExitOnError)
	exp := fs.String("exp", "", "Experiment name")
	id := fs.String("id", "", "Student id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exp == "" || *id == "" {
		return fmt.Errorf("--exp and --id are required")
	}

	cfg, err := requireAuthConfig()
	if err != nil {
		return err
	}

	payload := map[string]string{"student_id": *id}
	if err := adminRequest(cfg, http.MethodPost, "/exp/"+*exp+"/admin/delete-student", payload, nil); err != nil {
		return err
	}

	fmt.Printf("Student %s deleted from %s (logs purged)\n", *id, *exp)
	return nil
}

// ---- logs ----

func cmdLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	baseURL := fs.String("base-url", "http://localhost:9000", "LEAP server base URL")
	exp := fs.String("exp", "", "Experiment name")
	student := fs.String("student", "", "Filter by student id")
	trial := fs.String("trial", "", "Filter by trial name")
	funcName := fs.String("func", "", "Filter by function name")
	n := fs.Int("n", 100, "Max entries")
	order := fs.String("order", "latest", "Order: latest or earliest")
	all := fs.Bool("all", false, "Fetch every matching entry (paginates)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *exp == "" {
		return fmt.Errorf("--exp is required")
	}

	lc := client.NewLogClient(*baseURL, *exp)
	q := client.Query{
		StudentID: *student,
		Trial:     *trial,
		FuncName:  *funcName,
		Order:     *order,
		Limit:     *n,
	}

	var entries []client.Entry
	var err error
	if *all {
		entries, err = lc.AllLogs(context.Background(), q, 1000)
	} else {
		entries, err = lc.Logs(context.Background(), q)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// ---- Cobra command wiring ----

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LEAP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.Run()
		},
	}

	loginCmd := &cobra.Command{
		Use:                "login",
		Short:              "Authenticate against a LEAP server",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdLogin(args)
		},
	}

	setPasswordCmd := &cobra.Command{
		Use:                "set-password",
		Short:              "Write the admin credentials file",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdSetPassword(args)
		},
	}

	newCmd := &cobra.Command{
		Use:                "new",
		Short:              "Scaffold a new experiment directory",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdNew(args)
		},
	}

	studentCmd := &cobra.Command{
		Use:                "student",
		Short:              "Manage registered students",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStudent(args)
		},
	}

	logsCmd := &cobra.Command{
		Use:                "logs",
		Short:              "Query an experiment's call log",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdLogs(args)
		},
	}

	rootCmd.AddCommand(serveCmd, loginCmd, setPasswordCmd, newCmd, studentCmd, logsCmd)
}
