package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Swarmfield server URL")
	watch := flag.Bool("watch", false, "refresh the overview every few seconds")
	flag.Parse()

	if *watch {
		for {
			fmt.Print("\033[H\033[2J")
			overview(*server)
			time.Sleep(5 * time.Second)
		}
	}

	fmt.Println("Swarmfield observer")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Commands: /concepts, /tasks, /facts [query], /events, /add <task description>")
	fmt.Println("Type 'exit' to leave.")
	fmt.Println("---")

	overview(*server)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			fmt.Println("Bye!")
			return
		case input == "/concepts":
			fetchConcepts(*server)
		case input == "/tasks":
			fetchTasks(*server)
		case strings.HasPrefix(input, "/facts"):
			fetchFacts(*server, strings.TrimSpace(strings.TrimPrefix(input, "/facts")))
		case input == "/events":
			fetchEvents(*server)
		case strings.HasPrefix(input, "/add "):
			addTask(*server, strings.TrimSpace(strings.TrimPrefix(input, "/add ")))
		default:
			fmt.Println("Unknown command.")
		}
	}
}

func overview(server string) {
	fetchConcepts(server)
	fetchTasks(server)
	fetchEvents(server)
}

func fetchConcepts(server string) {
	resp, err := http.Get(server + "/api/concepts?limit=10")
	if err != nil {
		printError("Failed to fetch concepts: %v", err)
		return
	}
	defer resp.Body.Close()

	var concepts []struct {
		Name      string  `json:"name"`
		Pheromone float64 `json:"pheromone"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&concepts); err != nil {
		printError("Failed to parse concepts: %v", err)
		return
	}
	fmt.Println("Strongest concepts:")
	if len(concepts) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, c := range concepts {
		bar := strings.Repeat("#", int(c.Pheromone*4))
		if len(bar) > 40 {
			bar = bar[:40]
		}
		fmt.Printf("  %-40s %6.2f %s\n", trim(c.Name, 40), c.Pheromone, bar)
	}
}

func fetchTasks(server string) {
	resp, err := http.Get(server + "/api/tasks?limit=10")
	if err != nil {
		printError("Failed to fetch tasks: %v", err)
		return
	}
	defer resp.Body.Close()

	var tasks []struct {
		ID          int64  `json:"id"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		printError("Failed to parse tasks: %v", err)
		return
	}
	fmt.Println("Pending tasks:")
	if len(tasks) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, t := range tasks {
		fmt.Printf("  #%-4d %s\n", t.ID, trim(t.Description, 70))
	}
}

func fetchFacts(server, query string) {
	url := server + "/api/facts?limit=10"
	if query != "" {
		url += "&q=" + query
	}
	resp, err := http.Get(url)
	if err != nil {
		printError("Failed to fetch facts: %v", err)
		return
	}
	defer resp.Body.Close()

	var facts []struct {
		ID            int64  `json:"id"`
		Content       string `json:"content"`
		SourceAgentID string `json:"source_agent_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&facts); err != nil {
		printError("Failed to parse facts: %v", err)
		return
	}
	fmt.Println("Facts:")
	if len(facts) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, f := range facts {
		fmt.Printf("  [%s] %s\n", f.SourceAgentID, trim(f.Content, 90))
	}
}

func fetchEvents(server string) {
	resp, err := http.Get(server + "/api/events?limit=10")
	if err != nil {
		printError("Failed to fetch events: %v", err)
		return
	}
	defer resp.Body.Close()

	var events []struct {
		Type      string    `json:"type"`
		AgentID   string    `json:"agent_id"`
		TaskID    int64     `json:"task_id"`
		Iteration int       `json:"iteration"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		printError("Failed to parse events: %v", err)
		return
	}
	fmt.Println("Recent events:")
	if len(events) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-16s", e.Timestamp.Format("15:04:05"), e.Type)
		if e.AgentID != "" {
			line += " " + e.AgentID
		}
		if e.TaskID != 0 {
			line += fmt.Sprintf(" task#%d", e.TaskID)
		}
		fmt.Println(line)
	}
}

func addTask(server, description string) {
	if description == "" {
		printError("Usage: /add <task description>")
		return
	}
	body, _ := json.Marshal(map[string]string{
		"description":     description,
		"source_agent_id": "swarmtop",
	})
	resp, err := http.Post(server+"/api/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Printf("Task #%d created.\n", created.ID)
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
