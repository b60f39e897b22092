package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raphaelgruber/fbparty-go/internal/scraper"
	"github.com/spf13/cobra"
)

var cookieCmd = &cobra.Command{
	Use:   "cookie",
	Short: "Manage the stored Facebook session",
	Long: `Manage the browser session the server uses to reach Facebook.

Export your cookies from a logged-in browser (JSON array or Netscape
cookies.txt) and upload them. Cookie values are stored encrypted and never
returned by the server.

Examples:
  fbparty cookie upload cookies.json
  cat cookies.txt | fbparty cookie upload -
  fbparty cookie status
  fbparty cookie validate`,
}

var cookieUploadCmd = &cobra.Command{
	Use:   "upload <file|->",
	Short: "Upload a cookie export",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookieUpload,
}

var cookieStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show metadata of the stored session",
	Args:  cobra.NoArgs,
	RunE:  runCookieStatus,
}

var cookieValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the stored session is still logged in",
	Args:  cobra.NoArgs,
	RunE:  runCookieValidate,
}

var cookieInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Mark the stored session as invalid",
	Args:  cobra.NoArgs,
	RunE:  runCookieInvalidate,
}

func init() {
	cookieCmd.AddCommand(cookieUploadCmd)
	cookieCmd.AddCommand(cookieStatusCmd)
	cookieCmd.AddCommand(cookieValidateCmd)
	cookieCmd.AddCommand(cookieInvalidateCmd)
}

func runCookieUpload(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	res, err := apiClient.UploadCookies(context.Background(), data)
	if err != nil {
		return fmt.Errorf("upload cookies: %w", err)
	}

	fmt.Printf("Stored %d cookies (%s)\n", res.Count, res.ID)
	if res.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", res.ExpiresAt.Format(time.RFC3339))
	}
	printValidation(res.Validation)
	return nil
}

func runCookieStatus(cmd *cobra.Command, args []string) error {
	st, err := apiClient.CookieStatus(context.Background())
	if err != nil {
		return fmt.Errorf("cookie status: %w", err)
	}
	if !st.Present {
		fmt.Println("No cookies stored")
		return nil
	}

	fmt.Printf("Cookies: %s\n", st.ID)
	if st.SavedAt != nil {
		fmt.Printf("  Saved: %s\n", st.SavedAt.Format(time.RFC3339))
	}
	if st.ExpiresAt != nil {
		expiry := st.ExpiresAt.Format(time.RFC3339)
		if st.Expired {
			expiry += " (expired)"
		}
		fmt.Printf("  Expires: %s\n", expiry)
	}
	fmt.Printf("  Valid: %t\n", st.Valid)
	if st.LastChecked != nil {
		fmt.Printf("  Last checked: %s\n", st.LastChecked.Format(time.RFC3339))
	}
	return nil
}

func runCookieValidate(cmd *cobra.Command, args []string) error {
	res, err := apiClient.ValidateCookies(context.Background())
	if err != nil {
		return fmt.Errorf("validate cookies: %w", err)
	}
	printValidation(*res)
	if !res.OK {
		return fmt.Errorf("session is not usable")
	}
	return nil
}

func runCookieInvalidate(cmd *cobra.Command, args []string) error {
	if err := apiClient.InvalidateCookies(context.Background()); err != nil {
		return fmt.Errorf("invalidate cookies: %w", err)
	}
	fmt.Println("Stored session marked invalid")
	return nil
}

func printValidation(v scraper.Validation) {
	if v.OK {
		fmt.Println("  Session: logged in")
		return
	}
	fmt.Printf("  Session: %s", v.Reason)
	if v.Detail != "" {
		fmt.Printf(" (%s)", v.Detail)
	}
	fmt.Println()
}
