package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	token      string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "pmctl",
	Short: "pmctl - command-line client for the project-management sync backend",
	Long:  "A thin REST client for pmsyncd: create and inspect projects and work items, and check server health, without opening a WebSocket connection.",
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func doRequest(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, serverAddr+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return httpClient().Do(req)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}
	if jsonOutput {
		fmt.Println(string(body))
		return nil
	}
	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "create a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		key, _ := cmd.Flags().GetString("key")
		resp, err := doRequest(http.MethodPost, "/v1/projects", map[string]string{"title": title, "key": key})
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var projectGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "fetch a project by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := doRequest(http.MethodGet, "/v1/projects/"+args[0], nil)
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var workItemsCmd = &cobra.Command{
	Use:   "work-items",
	Short: "manage work items",
}

var workItemCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "create a work item",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		itemType, _ := cmd.Flags().GetString("type")
		title, _ := cmd.Flags().GetString("title")
		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		resp, err := doRequest(http.MethodPost, "/v1/work-items", map[string]any{
			"project_id": projectID, "item_type": itemType, "title": title,
			"status": status, "priority": priority, "position": 0,
		})
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var workItemListCmd = &cobra.Command{
	Use:   "list [project-id]",
	Short: "list work items for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := doRequest(http.MethodGet, "/v1/projects/"+args[0]+"/work-items", nil)
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := doRequest(http.MethodGet, "/health", nil)
		if err != nil {
			return err
		}
		return printResponse(resp)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "pmsyncd base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token for authenticated deployments")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON instead of pretty-printing")

	projectCreateCmd.Flags().String("title", "", "project title")
	projectCreateCmd.Flags().String("key", "", "project key (1-10 uppercase letters or digits)")
	projectsCmd.AddCommand(projectCreateCmd, projectGetCmd)

	workItemCreateCmd.Flags().String("project", "", "project id")
	workItemCreateCmd.Flags().String("type", "task", "item type (project, epic, story, task)")
	workItemCreateCmd.Flags().String("title", "", "work item title")
	workItemCreateCmd.Flags().String("status", "todo", "work item status")
	workItemCreateCmd.Flags().String("priority", "medium", "work item priority")
	workItemsCmd.AddCommand(workItemCreateCmd, workItemListCmd)

	rootCmd.AddCommand(projectsCmd, workItemsCmd, healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
