package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"fmscript/cli/internal/config"
	"fmscript/cli/internal/connection"
	"fmscript/cli/internal/dataapi"
	"fmscript/cli/internal/fmerr"
	"fmscript/cli/internal/httperrors"
	"fmscript/cli/internal/keychain"
	"fmscript/cli/internal/logging"
	"fmscript/cli/internal/odata"
	"fmscript/cli/internal/script"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	runParam    string
	runProtocol string
	runTimeout  time.Duration
)

// runCmd executes a named script on the configured FileMaker server and
// prints its result.
var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a script on the configured FileMaker server",
	Long: `The run command executes a named server-side script and prints its result.
The script parameter, when given, must be a JSON value; anything that does
not parse as JSON is sent as a plain string.

The transport comes from the stored configuration and can be overridden per
call with --protocol. The Data API transport acquires a session token for
the call and releases it before exiting.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scriptName := args[0]
		ctx := cmd.Context()

		km, err := keychain.GetManager()
		if err != nil {
			return err
		}
		rawURL, err := km.LoadConnectionURL()
		if err != nil {
			pterm.Println("⚠️  No connection configured.")
			pterm.Println("   Please run: fmscript connect")
			return errors.New("no connection configured")
		}
		conn, err := connection.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("%s", logging.PresentError("stored connection URL is invalid", err))
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		protocol := cfg.Protocol
		if runProtocol != "" {
			protocol = runProtocol
		}

		var parameter any
		if cmd.Flags().Changed("param") {
			if err := json.Unmarshal([]byte(runParam), &parameter); err != nil {
				// Not JSON: send it as a plain string.
				parameter = runParam
			}
		}

		hc := &http.Client{Timeout: runTimeout}
		var client script.Client
		var release func() error

		switch protocol {
		case config.ProtocolDataAPI:
			if cfg.Layout.Name == "" {
				pterm.Println("⚠️  The Data API protocol needs a script layout.")
				pterm.Println("   Please run: fmscript connect --protocol data --layout <layout>")
				return errors.New("no script layout configured")
			}
			layout := dataapi.NewLayoutContext(cfg.Layout.Name, cfg.Layout.SearchField, cfg.Layout.SearchValue)
			dc := dataapi.NewWithClient(conn, layout, hc)
			client = dc
			release = func() error { return dc.ReleaseToken(ctx) }
		case config.ProtocolOData:
			client = odata.NewWithClient(conn, hc)
		default:
			return fmt.Errorf("unknown protocol %q (use %q or %q)",
				protocol, config.ProtocolOData, config.ProtocolDataAPI)
		}

		cursor.Hide()
		stop := startInlineSpinner(os.Stderr, fmt.Sprintf("Running %s…", scriptName), spinnerFrames, 120*time.Millisecond)
		result, err := client.Execute(ctx, scriptName, parameter)
		stop()
		cursor.Show()

		if release != nil {
			// One-shot process: drop the session token, best effort.
			_ = release()
		}

		if err != nil {
			return presentExecuteError(err, scriptName)
		}

		printResult(result)
		return nil
	},
}

// printResult writes the script result to stdout: pretty-printed when it is
// JSON, verbatim otherwise.
func printResult(result script.Result) {
	raw, ok := result.Raw()
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		pterm.Println("✅ Script completed with no result")
		return
	}

	if json.Valid(raw) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err == nil {
			fmt.Println(pretty.String())
			return
		}
	}
	fmt.Println(string(raw))
}

// presentExecuteError displays an execute failure by taxonomy kind and
// returns a terse error for the exit status.
func presentExecuteError(err error, scriptName string) error {
	var se *fmerr.ScriptError
	if errors.As(err, &se) {
		pterm.Printf("❌ Script %q failed with code %d\n", scriptName, se.Code)
		if se.Data != "" {
			pterm.Printf("   Result payload: %s\n", se.Data)
		}
		return fmt.Errorf("script %q failed with code %d", scriptName, se.Code)
	}

	var fme *fmerr.FileMakerError
	if errors.As(err, &fme) {
		pterm.Printf("❌ FileMaker rejected the request (error %s): %s\n", fme.Code, fme.Message)
		return fmt.Errorf("filemaker error %s", fme.Code)
	}

	var ue *fmerr.UnknownResponseError
	if errors.As(err, &ue) {
		pterm.Printf("❌ Server returned an unexpected response (HTTP %d)\n", ue.Status)
		return fmt.Errorf("unknown response with status %d", ue.Status)
	}

	var e *fmerr.E
	if errors.As(err, &e) && e.Kind == fmerr.TransportFailed {
		return httperrors.FormatNetworkError(err, fmt.Sprintf("running %q", scriptName))
	}

	return fmt.Errorf("%s", logging.PresentError(fmt.Sprintf("running %q", scriptName), err))
}

func init() {
	runCmd.Flags().StringVar(&runParam, "param", "", "Script parameter (JSON value or plain string)")
	runCmd.Flags().StringVar(&runProtocol, "protocol", "", "Override the configured protocol: odata or data")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 60*time.Second, "HTTP timeout for the script call")
	rootCmd.AddCommand(runCmd)
}
