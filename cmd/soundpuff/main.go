// Command soundpuff is the command-line interface for the SoundPuff API:
// account signup and login, profile inspection, and catalog search.
//
// The session token pair is stored in ~/.soundpuff/session.json so commands
// stay authenticated across invocations.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soundpuff/soundpuff/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	apiURL  string
	cfgFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "soundpuff",
	Short: "SoundPuff CLI",
	Long: `soundpuff is the command-line interface for the SoundPuff API.

It lets you create an account, log in and out, inspect profiles, and
search the song catalog.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.soundpuff")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if apiURL == "" {
			apiURL = viper.GetString("api_url")
		}
		if apiURL == "" {
			apiURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.soundpuff/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "SoundPuff API URL (default http://localhost:8080)")

	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── session storage ──────────────────────────────────────────────────────────

func sessionPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".soundpuff", "session.json")
}

func loadSession() *client.Session {
	raw, err := os.ReadFile(sessionPath())
	if err != nil {
		return nil
	}
	var s client.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func saveSession(s *client.Session) error {
	path := sessionPath()
	if s == nil {
		return os.Remove(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func apiClient() *client.Client {
	var opts []client.Option
	if s := loadSession(); s != nil {
		opts = append(opts, client.WithSession(s))
	}
	return client.New(apiURL, opts...)
}

// ── signup ───────────────────────────────────────────────────────────────────

var signupCmd = &cobra.Command{
	Use:   "signup <email> <username>",
	Short: "Create a SoundPuff account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		c := apiClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := c.Signup(ctx, args[0], password, args[1])
		if err != nil {
			return err
		}

		if res.Session == nil {
			fmt.Println(res.Message)
			return nil
		}
		if err := saveSession(c.Session()); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
		fmt.Printf("account created, logged in as %s\n", res.User.Username)
		return nil
	},
}

// ── login / logout ───────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in to SoundPuff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		c := apiClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := c.Login(ctx, args[0], password); err != nil {
			return err
		}
		if err := saveSession(c.Session()); err != nil {
			return fmt.Errorf("store session: %w", err)
		}

		me, err := c.Me(ctx)
		if err != nil {
			fmt.Println("logged in")
			return nil
		}
		fmt.Printf("logged in as %s\n", me.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and revoke all sessions for this account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := c.Logout(ctx)
		if rmErr := saveSession(nil); rmErr != nil && !os.IsNotExist(rmErr) {
			return rmErr
		}
		if err != nil {
			fmt.Println("local session cleared (server revocation failed)")
			return nil
		}
		fmt.Println("logged out everywhere")
		return nil
	},
}

// ── me ───────────────────────────────────────────────────────────────────────

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the authenticated user's profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		me, err := c.Me(ctx)
		if err != nil {
			return err
		}
		if s := c.Session(); s != nil {
			_ = saveSession(s) // persist a silently refreshed token pair
		}

		fmt.Printf("username:  %s\n", me.Username)
		fmt.Printf("id:        %s\n", me.ID)
		if me.Bio != "" {
			fmt.Printf("bio:       %s\n", me.Bio)
		}
		if me.AvatarURL != "" {
			fmt.Printf("avatar:    %s\n", me.AvatarURL)
		}
		fmt.Printf("joined:    %s\n", me.CreatedAt.Format("2006-01-02"))
		return nil
	},
}

// ── search ───────────────────────────────────────────────────────────────────

var searchType string

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search songs and users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		res, err := c.Search(ctx, strings.Join(args, " "), searchType)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		if len(res.Songs) > 0 {
			fmt.Fprintln(w, "SONG\tARTIST")
			for _, s := range res.Songs {
				fmt.Fprintf(w, "%s\t%s\n", s.Title, s.Artist)
			}
		}
		if len(res.Users) > 0 {
			if len(res.Songs) > 0 {
				fmt.Fprintln(w, "\t")
			}
			fmt.Fprintln(w, "USER\tJOINED")
			for _, u := range res.Users {
				fmt.Fprintf(w, "%s\t%s\n", u.Username, u.CreatedAt.Format("2006-01-02"))
			}
		}
		if len(res.Songs) == 0 && len(res.Users) == 0 {
			fmt.Println("no results")
			return nil
		}
		return w.Flush()
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the soundpuff CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("soundpuff %s\n", version)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "all", "what to search: songs, users, or all")
}

// promptPassword reads a password from stdin. Plain line read: no terminal
// echo suppression, so piping passwords in scripts also works.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
