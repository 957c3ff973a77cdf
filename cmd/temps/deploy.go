package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Trigger a deployment against a running temps API",
}

func init() {
	deployCmd.AddCommand(deployImageCmd)
	deployCmd.AddCommand(deployStaticCmd)

	for _, cmd := range []*cobra.Command{deployImageCmd, deployStaticCmd} {
		cmd.Flags().String("api-url", envOr("TEMPS_API_URL", "http://127.0.0.1:8080"), "Deployment API base URL")
		cmd.Flags().String("token", os.Getenv("TEMPS_API_TOKEN"), "Bearer token for the deployment API")
		cmd.Flags().String("project", "", "Project slug or ID (required)")
		cmd.Flags().String("environment", "", "Environment name (required)")
		cmd.Flags().Bool("wait", false, "Poll the deployment until it reaches a terminal state")
		cmd.Flags().Int("timeout", 300, "Seconds to wait for --wait before giving up")
		cmd.Flags().String("metadata", "", "JSON object merged into the deployment's job metadata")
		cmd.MarkFlagRequired("project")
		cmd.MarkFlagRequired("environment")
	}

	deployImageCmd.Flags().String("image", "", "Container image reference")
	deployImageCmd.MarkFlagRequired("image")

	deployStaticCmd.Flags().String("path", "", "Directory or archive to upload and deploy")
	deployStaticCmd.MarkFlagRequired("path")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var deployImageCmd = &cobra.Command{
	Use:   "image",
	Short: "Deploy a container image",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDeployClient(cmd)
		if err != nil {
			return err
		}

		image, _ := cmd.Flags().GetString("image")
		metadata, err := parseMetadataFlag(cmd)
		if err != nil {
			return err
		}

		body := map[string]any{"image_ref": image, "metadata": metadata}
		return client.triggerAndReport(cmd, "deploy/image", body)
	},
}

var deployStaticCmd = &cobra.Command{
	Use:   "static",
	Short: "Upload and deploy a static bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newDeployClient(cmd)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("path")
		metadata, err := parseMetadataFlag(cmd)
		if err != nil {
			return err
		}

		bundleID, err := client.uploadStatic(path)
		if err != nil {
			return fmt.Errorf("upload static bundle: %w", err)
		}

		body := map[string]any{"static_bundle_id": bundleID, "metadata": metadata}
		return client.triggerAndReport(cmd, "deploy/static", body)
	},
}

func parseMetadataFlag(cmd *cobra.Command) (map[string]string, error) {
	raw, _ := cmd.Flags().GetString("metadata")
	if raw == "" {
		return map[string]string{}, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("--metadata: invalid JSON object: %w", err)
	}
	return metadata, nil
}

// deployClient is a thin wrapper over the deployment API's HTTP surface,
// scoped to a single --project/--environment pair.
type deployClient struct {
	baseURL     string
	token       string
	project     string
	environment string
	http        *http.Client
}

func newDeployClient(cmd *cobra.Command) (*deployClient, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	token, _ := cmd.Flags().GetString("token")
	project, _ := cmd.Flags().GetString("project")
	environment, _ := cmd.Flags().GetString("environment")

	return &deployClient{
		baseURL:     strings.TrimSuffix(apiURL, "/"),
		token:       token,
		project:     project,
		environment: environment,
		http:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *deployClient) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// uploadStatic archives path (if it is a directory) and POSTs it to the
// upload endpoint, returning the opaque blob path the deploy-static
// endpoint expects back as static_bundle_id.
func (c *deployClient) uploadStatic(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	var archivePath string
	if info.IsDir() {
		archivePath, err = archiveDirectory(path)
		if err != nil {
			return "", fmt.Errorf("archive %q: %w", path, err)
		}
		defer os.Remove(archivePath)
	} else {
		archivePath = path
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(archivePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(http.MethodPost, fmt.Sprintf("/projects/%s/upload/static", c.project), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", apiError(resp)
	}

	var uploaded struct {
		BlobPath string `json:"blob_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", err
	}
	return uploaded.BlobPath, nil
}

// triggerAndReport POSTs the deploy request, then (if --wait is set)
// polls GET /deployments/{id} every 5s until dep.State is terminal.
func (c *deployClient) triggerAndReport(cmd *cobra.Command, action string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/projects/%s/environments/%s/%s", c.project, c.environment, action)
	req, err := c.newRequest(http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return apiError(resp)
	}

	var dep deploymentView
	if err := json.NewDecoder(resp.Body).Decode(&dep); err != nil {
		return err
	}
	fmt.Printf("deployment %s triggered (state: %s)\n", dep.ID, dep.State)

	wait, _ := cmd.Flags().GetBool("wait")
	if !wait {
		return nil
	}

	timeoutSeconds, _ := cmd.Flags().GetInt("timeout")
	return c.waitForTerminal(dep.ID, time.Duration(timeoutSeconds)*time.Second)
}

type deploymentView struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func (c *deployClient) waitForTerminal(id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		req, err := c.newRequest(http.MethodGet, "/deployments/"+id, nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		var dep deploymentView
		decodeErr := json.NewDecoder(resp.Body).Decode(&dep)
		resp.Body.Close()
		if decodeErr != nil {
			return decodeErr
		}

		switch dep.State {
		case "completed":
			fmt.Printf("deployment %s completed\n", id)
			return nil
		case "failed", "cancelled":
			return fmt.Errorf("deployment %s ended in state %q", id, dep.State)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for deployment %s (last state %q)", id, dep.State)
		}
		time.Sleep(5 * time.Second)
	}
}

func apiError(resp *http.Response) error {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&problem)
	if problem.Detail != "" {
		return fmt.Errorf("%s: %s (%s)", resp.Status, problem.Title, problem.Detail)
	}
	return fmt.Errorf("request failed: %s", resp.Status)
}
