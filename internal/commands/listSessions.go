package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"conversa/internal/config"
	"conversa/internal/models"
)

// ListSessions asks the running server's admin API for the open sessions
// and prints them.
func ListSessions(out io.Writer, cfg *config.Config) error {
	url := fmt.Sprintf("http://%s/admin/sessions", cfg.AdminAddr)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(cfg.AdminUser, cfg.AdminPassword)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result models.APIResponse[[]models.Session]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response (Status: %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		if result.Error != nil {
			return fmt.Errorf("failed to list sessions (Status: %d): %s", resp.StatusCode, result.Error.Message)
		}
		return fmt.Errorf("failed to list sessions (Status: %d)", resp.StatusCode)
	}

	if len(result.Data) == 0 {
		_, err := fmt.Fprintln(out, "No open sessions.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tEMAIL\tNAME\tSINCE")
	for _, s := range result.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.User.ID, s.User.Email, s.User.DisplayName, s.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
