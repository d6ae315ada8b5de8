// Command agentdesk is the AgentDesk CLI client.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/agentdesk/internal/version"
	"github.com/GoCodeAlone/agentdesk/update"
)

const defaultServer = "http://localhost:9090"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "agentdesk server URL")
		token     = flag.String("token", os.Getenv("AGENTDESK_TOKEN"), "JWT auth token")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "update":
		err = cmdUpdate(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "login":
		err = cli.cmdLogin(rest)
	case "agents":
		err = cli.cmdAgents(rest)
	case "agent":
		err = cli.cmdAgent(rest)
	case "chain":
		err = cli.cmdChain(rest)
	case "orgchart":
		err = cli.cmdOrgChart(rest)
	case "teams":
		err = cli.cmdTeams(rest)
	case "tasks":
		err = cli.cmdTasks(rest)
	case "task":
		err = cli.cmdTask(rest)
	case "audit":
		err = cli.cmdAudit(rest)
	case "metrics":
		err = cli.cmdMetrics(rest)
	case "messages":
		err = cli.cmdMessages(rest)
	case "serve":
		fmt.Fprintln(os.Stderr, "use agentdeskd to run the server")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `agentdesk — AgentDesk CLI

Usage:
  agentdesk [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9090)
  --token   <token>  JWT auth token (or $AGENTDESK_TOKEN)

Commands:
  version                         print version
  update                          self-update to the latest release
  status                          show server status
  login <username>                obtain an auth token
  agents                          list desks
  agent <id>                      show one desk
  chain <id>                      show a desk's reporting chain
  orgchart                        print the org tree
  teams                           list teams
  tasks [status]                  list tasks, optionally by status
  task create [flags] <title>     create a task (see task create -h)
  task show <id>                  show one task
  task delegate <id> <from> <to>  reassign a task down the hierarchy
  audit [task_id]                 list audit entries
  metrics                         show org metrics
  messages [recipient]            list bus messages
`)
}

// --- version / update ---

func cmdVersion(_ []string) error {
	fmt.Printf("agentdesk %s\n", version.String())
	return nil
}

func cmdUpdate(_ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	u := update.New(version.Version)
	rel, err := u.CheckForUpdate(ctx)
	if err != nil {
		return err
	}
	if rel == nil {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Printf("downloading %s...\n", rel.Version)
	if err := u.ApplyUpdate(ctx, rel); err != nil {
		return err
	}
	fmt.Printf("updated to %s\n", rel.Version)
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// post performs a POST and decodes the JSON response into v (may be nil).
func (c *Client) post(path string, body any, v any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

// --- wire views ---

type deskView struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	Level        int      `json:"hierarchy_level"`
	ReportsTo    string   `json:"reports_to"`
	TeamID       string   `json:"team_id"`
	Status       string   `json:"status"`
	CurrentTask  string   `json:"current_task"`
	Memory       struct {
		History   []json.RawMessage `json:"history"`
		Learnings []string          `json:"learnings"`
	} `json:"memory"`
}

type orgNodeView struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Role     string         `json:"role"`
	Status   string         `json:"status"`
	Children []*orgNodeView `json:"children"`
}

type taskView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	AssignedTo  string `json:"assigned_to"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	QARequired  bool   `json:"qa_required"`
	Result      string `json:"result"`
	Error       string `json:"error"`
	Usage       struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// --- status / login ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", result["status"])
	fmt.Printf("org:     %s\n", result["org"])
	fmt.Printf("version: %s\n", result["version"])
	if up := result["uptime"]; up != "" {
		fmt.Printf("uptime:  %s\n", up)
	}
	return nil
}

func (c *Client) cmdLogin(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdesk login <username>")
	}
	fmt.Fprint(os.Stderr, "password: ")
	pass, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	var result struct {
		Token string `json:"token"`
	}
	body := map[string]string{
		"username": args[0],
		"password": strings.TrimRight(pass, "\r\n"),
	}
	if err := c.post("/api/auth/login", body, &result); err != nil {
		return err
	}
	fmt.Println(result.Token)
	fmt.Fprintf(os.Stderr, "\nexport AGENTDESK_TOKEN=%s\n", result.Token)
	return nil
}

// --- desks ---

func (c *Client) cmdAgents(_ []string) error {
	var desks []deskView
	if err := c.get("/api/agents", &desks); err != nil {
		return err
	}
	if len(desks) == 0 {
		fmt.Println("no desks")
		return nil
	}
	fmt.Printf("%-12s %-24s %-20s %-5s %-8s\n", "ID", "TITLE", "ROLE", "LVL", "STATUS")
	fmt.Println(strings.Repeat("-", 73))
	for _, d := range desks {
		fmt.Printf("%-12s %-24s %-20s %-5d %-8s\n",
			d.ID, truncate(d.Title, 23), roleTitle(d.Role), d.Level, d.Status)
	}
	return nil
}

func (c *Client) cmdAgent(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdesk agent <id>")
	}
	var d deskView
	if err := c.get("/api/agents/"+args[0], &d); err != nil {
		return err
	}
	fmt.Printf("id:           %s\n", d.ID)
	fmt.Printf("title:        %s\n", d.Title)
	fmt.Printf("role:         %s\n", roleTitle(d.Role))
	fmt.Printf("level:        %d\n", d.Level)
	fmt.Printf("status:       %s\n", d.Status)
	fmt.Printf("reports to:   %s\n", orDash(d.ReportsTo))
	fmt.Printf("team:         %s\n", orDash(d.TeamID))
	fmt.Printf("capabilities: %s\n", orDash(strings.Join(d.Capabilities, ", ")))
	fmt.Printf("current task: %s\n", orDash(d.CurrentTask))
	fmt.Printf("memory:       %d exchanges, %d learnings\n",
		len(d.Memory.History), len(d.Memory.Learnings))
	return nil
}

func (c *Client) cmdChain(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdesk chain <id>")
	}
	var chain []deskView
	if err := c.get("/api/agents/"+args[0]+"/chain", &chain); err != nil {
		return err
	}
	parts := make([]string, 0, len(chain))
	for _, d := range chain {
		parts = append(parts, fmt.Sprintf("%s (%s)", d.ID, d.Title))
	}
	fmt.Println(strings.Join(parts, " -> "))
	return nil
}

func (c *Client) cmdOrgChart(_ []string) error {
	var roots []*orgNodeView
	if err := c.get("/api/orgchart", &roots); err != nil {
		return err
	}
	if len(roots) == 0 {
		fmt.Println("no desks")
		return nil
	}
	for _, root := range roots {
		printNode(root, 0)
	}
	return nil
}

func printNode(n *orgNodeView, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s [%s] %s, %s\n", indent, n.Title, n.ID, roleTitle(n.Role), n.Status)
	for _, child := range n.Children {
		printNode(child, depth+1)
	}
}

func (c *Client) cmdTeams(_ []string) error {
	var teams []struct {
		ID      string     `json:"id"`
		Name    string     `json:"name"`
		Lead    string     `json:"lead"`
		Members []deskView `json:"members"`
	}
	if err := c.get("/api/teams", &teams); err != nil {
		return err
	}
	if len(teams) == 0 {
		fmt.Println("no teams")
		return nil
	}
	fmt.Printf("%-15s %-20s %-12s %-7s\n", "ID", "NAME", "LEAD", "DESKS")
	fmt.Println(strings.Repeat("-", 57))
	for _, t := range teams {
		fmt.Printf("%-15s %-20s %-12s %-7d\n",
			t.ID, truncate(t.Name, 19), orDash(t.Lead), len(t.Members))
	}
	return nil
}

// --- tasks ---

func (c *Client) cmdTasks(args []string) error {
	path := "/api/tasks"
	if len(args) > 0 {
		path += "?status=" + args[0]
	}
	var tasks []taskView
	if err := c.get(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	fmt.Printf("%-36s %-30s %-10s %-9s %-12s\n", "ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNED")
	fmt.Println(strings.Repeat("-", 101))
	for _, t := range tasks {
		fmt.Printf("%-36s %-30s %-10s %-9s %-12s\n",
			t.ID, truncate(t.Title, 29), t.Status, t.Priority, orDash(t.AssignedTo))
	}
	return nil
}

func (c *Client) cmdTask(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdesk task <create|show|delegate> ...")
	}
	switch sub := args[0]; sub {
	case "create":
		return c.taskCreate(args[1:])
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: agentdesk task show <id>")
		}
		return c.taskShow(args[1])
	case "delegate":
		if len(args) < 4 {
			return fmt.Errorf("usage: agentdesk task delegate <id> <from> <to>")
		}
		return c.taskDelegate(args[1], args[2], args[3])
	default:
		return fmt.Errorf("unknown task subcommand: %s", sub)
	}
}

func (c *Client) taskCreate(args []string) error {
	fs := flag.NewFlagSet("task create", flag.ExitOnError)
	var (
		priority = fs.String("priority", "medium", "low | medium | high | critical")
		desc     = fs.String("desc", "", "task description")
		qa       = fs.Bool("qa", false, "require QA review")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: agentdesk task create [flags] <title>")
	}
	body := map[string]any{
		"title":       strings.Join(fs.Args(), " "),
		"description": *desc,
		"priority":    *priority,
		"qa_required": *qa,
		"created_by":  "cli",
	}
	var t taskView
	if err := c.post("/api/tasks", body, &t); err != nil {
		return err
	}
	fmt.Printf("created task %s", t.ID)
	if t.AssignedTo != "" {
		fmt.Printf(", assigned to %s", t.AssignedTo)
	}
	fmt.Println()
	return nil
}

func (c *Client) taskShow(id string) error {
	var t taskView
	if err := c.get("/api/tasks/"+id, &t); err != nil {
		return err
	}
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("title:       %s\n", t.Title)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("priority:    %s\n", t.Priority)
	fmt.Printf("created by:  %s\n", orDash(t.CreatedBy))
	fmt.Printf("assigned to: %s\n", orDash(t.AssignedTo))
	fmt.Printf("qa required: %v\n", t.QARequired)
	if t.Description != "" {
		fmt.Printf("description: %s\n", t.Description)
	}
	if t.Result != "" {
		fmt.Printf("result:      %s\n", t.Result)
	}
	if t.Error != "" {
		fmt.Printf("error:       %s\n", t.Error)
	}
	fmt.Printf("tokens:      %d in, %d out\n", t.Usage.InputTokens, t.Usage.OutputTokens)
	fmt.Printf("created:     %s\n", t.CreatedAt.Local().Format(time.DateTime))
	if t.CompletedAt != nil {
		fmt.Printf("completed:   %s\n", t.CompletedAt.Local().Format(time.DateTime))
	}
	return nil
}

func (c *Client) taskDelegate(id, from, to string) error {
	var result struct {
		Delegated  bool   `json:"delegated"`
		AssignedTo string `json:"assigned_to"`
	}
	body := map[string]string{"from": from, "to": to}
	if err := c.post("/api/tasks/"+id+"/delegate", body, &result); err != nil {
		return err
	}
	fmt.Printf("task %s delegated to %s\n", id, result.AssignedTo)
	return nil
}

// --- audit / metrics / messages ---

func (c *Client) cmdAudit(args []string) error {
	path := "/api/audit"
	if len(args) > 0 {
		path += "?task_id=" + args[0]
	}
	var entries []struct {
		Time       time.Time `json:"time"`
		Actor      string    `json:"actor"`
		Action     string    `json:"action"`
		TaskID     string    `json:"task_id"`
		ToDesk     string    `json:"to_desk"`
		Authorized bool      `json:"authorized"`
		Reason     string    `json:"reason"`
	}
	if err := c.get(path, &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no audit entries")
		return nil
	}
	fmt.Printf("%-20s %-10s %-10s %-36s %-8s %s\n", "TIME", "ACTOR", "ACTION", "TASK", "OK", "REASON")
	fmt.Println(strings.Repeat("-", 100))
	for _, e := range entries {
		ok := "yes"
		if !e.Authorized {
			ok = "DENIED"
		}
		fmt.Printf("%-20s %-10s %-10s %-36s %-8s %s\n",
			e.Time.Local().Format(time.DateTime), e.Actor, e.Action, e.TaskID, ok, e.Reason)
	}
	return nil
}

func (c *Client) cmdMetrics(_ []string) error {
	var m struct {
		Tasks struct {
			Total    int            `json:"total"`
			ByStatus map[string]int `json:"by_status"`
		} `json:"tasks"`
		Desks map[string]struct {
			Assigned  int `json:"assigned"`
			Completed int `json:"completed"`
			Failed    int `json:"failed"`
		} `json:"desks"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
		Audit struct {
			Authorized int `json:"authorized"`
			Denied     int `json:"denied"`
		} `json:"audit"`
		SSEClients int `json:"sse_clients"`
	}
	if err := c.get("/api/metrics", &m); err != nil {
		return err
	}

	fmt.Printf("tasks:   %d total", m.Tasks.Total)
	for _, s := range sortedKeys(m.Tasks.ByStatus) {
		fmt.Printf("  %s %d", s, m.Tasks.ByStatus[s])
	}
	fmt.Println()
	fmt.Printf("tokens:  %d in, %d out\n", m.Usage.InputTokens, m.Usage.OutputTokens)
	fmt.Printf("audit:   %d authorized, %d denied\n", m.Audit.Authorized, m.Audit.Denied)
	fmt.Printf("clients: %d connected\n", m.SSEClients)
	if len(m.Desks) > 0 {
		fmt.Println("desks:")
		for _, id := range sortedKeys(m.Desks) {
			d := m.Desks[id]
			fmt.Printf("  %-12s assigned %-4d completed %-4d failed %d\n",
				id, d.Assigned, d.Completed, d.Failed)
		}
	}
	return nil
}

func (c *Client) cmdMessages(args []string) error {
	path := "/api/messages"
	if len(args) > 0 {
		path += "?recipient=" + args[0]
	}
	var msgs []struct {
		Timestamp time.Time `json:"timestamp"`
		Type      string    `json:"type"`
		From      string    `json:"from"`
		To        string    `json:"to"`
		Subject   string    `json:"subject"`
	}
	if err := c.get(path, &msgs); err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("no messages")
		return nil
	}
	fmt.Printf("%-20s %-15s %-10s %-10s %s\n", "TIME", "TYPE", "FROM", "TO", "SUBJECT")
	fmt.Println(strings.Repeat("-", 90))
	for _, m := range msgs {
		fmt.Printf("%-20s %-15s %-10s %-10s %s\n",
			m.Timestamp.Local().Format(time.DateTime), m.Type, m.From, orDash(m.To),
			truncate(m.Subject, 40))
	}
	return nil
}

// --- helpers ---

var titleCaser = cases.Title(language.English)

// roleTitle renders a role slug like "senior_engineer" as "Senior Engineer".
func roleTitle(role string) string {
	return titleCaser.String(strings.ReplaceAll(role, "_", " "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
