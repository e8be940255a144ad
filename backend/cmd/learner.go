package cmd

import (
	"errors"
	"fmt"
	"io"

	"luminate/backend/catalog"
	"luminate/backend/client"
	"luminate/backend/models"
	"luminate/backend/session"
	"luminate/backend/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errNotSignedIn = errors.New("not signed in, run `luminate login` first")

// learner bundles the client-side stores for one command run.
type learner struct {
	log      *utils.Logger
	api      *client.Client
	sessions *session.Store
	catalog  *catalog.Store
	out      io.Writer
}

func newLearner(cmd *cobra.Command) (*learner, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := utils.InitLogger(cfg.LogMode)
	if err != nil {
		return nil, err
	}

	api := client.New(cfg.APIBaseURL, client.WithTimeout(cfg.RequestTimeout))
	sessions := session.NewStore(session.NewFileStorage(cfg.SessionFile), api, log)
	api.SetTokenSource(sessions.Token)
	sessions.RestoreSession()

	errOut := cmd.ErrOrStderr()
	store := catalog.NewStore(api, sessions, log, catalog.WithNotifier(func(err error) {
		fmt.Fprintln(errOut, errorStyle.Render("! "+err.Error()))
	}))

	return &learner{log: log, api: api, sessions: sessions, catalog: store, out: cmd.OutOrStdout()}, nil
}

func (l *learner) Close() {
	l.catalog.Close()
	l.log.Sync()
}

func (l *learner) requireSession() (session.Session, error) {
	sess, ok := l.sessions.Current()
	if !ok {
		return session.Session{}, errNotSignedIn
	}
	return sess, nil
}

// loadTopics fills the catalog and returns the recorded failure, if any.
func (l *learner) loadTopics(cmd *cobra.Command) error {
	l.catalog.LoadTopics(cmd.Context())
	return l.catalog.Err()
}

func newSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			sess, err := l.sessions.Signup(cmd.Context(), email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(l.out, "Welcome, %s <%s>\n", sess.DisplayName, sess.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("password", "", "Password")
	cmd.Flags().String("name", "", "Display name (defaults to the part of the email before @)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			sess, err := l.sessions.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(l.out, "Signed in as %s <%s>\n", sess.DisplayName, sess.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.sessions.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(l.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			sess, ok := l.sessions.Current()
			if !ok {
				fmt.Fprintln(l.out, "Not signed in")
				return nil
			}
			fmt.Fprintf(l.out, "%s <%s>, signed in %s\n", sess.DisplayName, sess.Email, sess.CreatedAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List topics, most popular first",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.loadTopics(cmd); err != nil {
				return err
			}
			topics := l.catalog.Topics()
			if term, _ := cmd.Flags().GetString("search"); term != "" {
				sort, _ := cmd.Flags().GetString("sort")
				if topics, err = l.api.SearchTopics(cmd.Context(), term, sort); err != nil {
					return err
				}
			}

			fmt.Fprintln(l.out, titleStyle.Render("Topics"))
			if len(topics) == 0 {
				fmt.Fprintln(l.out, subtleStyle.Render("Nothing matched"))
			}
			for _, t := range topics {
				var rec *models.ProgressRecord
				if p, ok := l.catalog.ProgressForTopic(t.ID); ok {
					rec = &p
				}
				fmt.Fprintln(l.out, renderTopicRow(t, rec))
			}
			return nil
		},
	}
	cmd.Flags().String("search", "", "Only show topics matching this term")
	cmd.Flags().String("sort", "popularity", "Order of search results: popularity, newest or title")
	return cmd
}

func newTopicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topic <id>",
		Short: "Show a topic and its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if err := l.loadTopics(cmd); err != nil {
				return err
			}
			topic, ok := l.catalog.TopicByID(args[0])
			if !ok {
				return fmt.Errorf("topic %q not found, run `luminate topics` to see what is available", args[0])
			}
			sections, err := l.catalog.LoadContentSections(cmd.Context(), topic.ID)
			if err != nil {
				return err
			}

			fmt.Fprintln(l.out, renderTopicHeader(topic))
			if rec, ok := l.catalog.ProgressForTopic(topic.ID); ok {
				fmt.Fprintln(l.out, renderProgress(rec))
			}
			for _, s := range sections {
				fmt.Fprintln(l.out)
				fmt.Fprintln(l.out, renderSection(s))
			}
			return nil
		},
	}
}

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <topic-id>",
		Short: "Record progress on a topic",
		Long:  "Records progress on a topic. The first call for a topic starts it; later calls update it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := progressUpdateFromFlags(cmd)
			if err != nil {
				return err
			}
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			if _, err := l.requireSession(); err != nil {
				return err
			}
			if err := l.loadTopics(cmd); err != nil {
				return err
			}
			topic, ok := l.catalog.TopicByID(args[0])
			if !ok {
				return fmt.Errorf("topic %q not found", args[0])
			}
			if err := l.catalog.UpdateProgress(cmd.Context(), topic.ID, update); err != nil {
				return err
			}
			rec, _ := l.catalog.ProgressForTopic(topic.ID)
			fmt.Fprintf(l.out, "%s\n%s\n", topic.Title, renderProgress(rec))
			return nil
		},
	}
	cmd.Flags().String("status", "", "not_started, in_progress or completed")
	cmd.Flags().Int("percent", 0, "Percent complete (0-100)")
	cmd.Flags().Int("minutes", 0, "Total minutes spent")
	return cmd
}

// progressUpdateFromFlags sets only the fields whose flags were given.
func progressUpdateFromFlags(cmd *cobra.Command) (models.ProgressUpdate, error) {
	var u models.ProgressUpdate
	flags := cmd.Flags()
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		status := models.Status(v)
		u.Status = &status
	}
	if flags.Changed("percent") {
		v, _ := flags.GetInt("percent")
		u.PercentComplete = &v
	}
	if flags.Changed("minutes") {
		v, _ := flags.GetInt("minutes")
		u.TimeSpentMinutes = &v
	}
	if errs := u.Validate(); len(errs) > 0 {
		return u, &catalog.InvalidUpdateError{Fields: errs}
	}
	return u, nil
}

func newDashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show your learning portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days < 1 || days > 90 {
				return fmt.Errorf("--days must be between 1 and 90")
			}
			l, err := newLearner(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			sess, err := l.requireSession()
			if err != nil {
				return err
			}

			// no shared cancellation: one load failing must not abort the other
			var g errgroup.Group
			g.Go(func() error {
				l.catalog.LoadTopics(cmd.Context())
				return nil
			})
			g.Go(func() error {
				_, err := l.catalog.LoadActivity(cmd.Context(), days)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			if err := l.catalog.Err(); err != nil {
				return err
			}

			topics := l.catalog.Topics()
			var history []models.PopularitySnapshot
			if len(topics) > 0 {
				// the trend is decoration; a failure has already been reported by the notifier
				history, _ = l.catalog.PopularityHistory(cmd.Context(), topics[0].ID, 14)
			}

			fmt.Fprintln(l.out, titleStyle.Render("Welcome back, "+sess.DisplayName))
			fmt.Fprintln(l.out)
			fmt.Fprintln(l.out, renderMetrics(l.catalog.Metrics()))
			fmt.Fprintln(l.out)
			fmt.Fprintln(l.out, renderActivity(l.catalog.Metrics().DailyActivity))
			if len(topics) > 0 {
				fmt.Fprintln(l.out)
				fmt.Fprintf(l.out, "%s %s %s\n", subtleStyle.Render("Most popular:"), topics[0].Title, sparkline(history))
			}
			return nil
		},
	}
	cmd.Flags().Int("days", 7, "Days of activity to show")
	return cmd
}
