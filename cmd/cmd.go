package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cedrugs/embeddy/embedder"
	"github.com/cedrugs/embeddy/envconfig"
	"github.com/cedrugs/embeddy/logutil"
	"github.com/cedrugs/embeddy/registry"
	"github.com/cedrugs/embeddy/server"
	"github.com/cedrugs/embeddy/version"
)

func PullHandler(cmd *cobra.Command, args []string) error {
	alias, err := cmd.Flags().GetString("alias")
	if err != nil {
		return err
	}

	reg, err := registry.Load(envconfig.RegistryPath())
	if err != nil {
		return err
	}

	m, err := reg.Pull(cmd.Context(), envconfig.ModelsDir(), args[0], alias)
	if err != nil {
		return err
	}

	fmt.Printf("pulled %s\n", m.Name)
	if m.Alias != "" {
		fmt.Printf("  alias: %s\n", m.Alias)
	}
	fmt.Printf("  path: %s\n", m.Path)
	return nil
}

func RunHandler(cmd *cobra.Command, args []string) error {
	texts, err := cmd.Flags().GetStringArray("text")
	if err != nil {
		return err
	}

	if len(texts) == 0 {
		return fmt.Errorf("no text provided, use --text \"your text\"")
	}

	reg, err := registry.Load(envconfig.RegistryPath())
	if err != nil {
		return err
	}

	m, err := reg.Get(args[0])
	if err != nil {
		return err
	}

	e, err := embedder.New(m.Path)
	if err != nil {
		return err
	}
	defer e.Close()

	embeddings, err := e.Embed(texts)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(map[string]any{
		"model":      args[0],
		"dimension":  e.Dimension(),
		"embeddings": embeddings,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(output))
	return nil
}

func ListHandler(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(envconfig.RegistryPath())
	if err != nil {
		return err
	}

	models := reg.List()
	if len(models) == 0 {
		fmt.Println("No models installed. Use 'embeddy pull <repo>' to download one.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "REPO", "ALIAS", "PULLED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")

	for _, m := range models {
		table.Append([]string{m.Name, m.Repo, m.Alias, m.DownloadedAt})
	}

	table.Render()
	return nil
}

func ServeHandler(cmd *cobra.Command, args []string) error {
	ln, err := net.Listen("tcp", envconfig.Host)
	if err != nil {
		return err
	}

	return server.Serve(ln)
}

func NewCLI() *cobra.Command {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(logutil.NewLogger(os.Stderr, level))

	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "embeddy",
		Short:         "A lightweight embeddings-only model runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	pullCmd := &cobra.Command{
		Use:   "pull REPO",
		Short: "Pull a model from the HuggingFace hub",
		Args:  cobra.ExactArgs(1),
		RunE:  PullHandler,
	}
	pullCmd.Flags().String("alias", "", "Optional alias for the model")

	runCmd := &cobra.Command{
		Use:   "run MODEL",
		Short: "Embed text with an installed model",
		Args:  cobra.ExactArgs(1),
		RunE:  RunHandler,
	}
	runCmd.Flags().StringArray("text", nil, "Text to embed (can be repeated)")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed models",
		Args:    cobra.ExactArgs(0),
		RunE:    ListHandler,
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the embeddy server",
		Args:    cobra.ExactArgs(0),
		RunE:    ServeHandler,
	}

	envVars := envconfig.AsMap()
	serveCmd.SetUsageTemplate(serveCmd.UsageTemplate() + fmt.Sprintf(`
Environment Variables:

    %-18s %s
    %-18s %s
    %-18s %s
    %-18s %s
`,
		envVars["EMBEDDY_HOST"].Name, envVars["EMBEDDY_HOST"].Description,
		envVars["EMBEDDY_DATA_DIR"].Name, envVars["EMBEDDY_DATA_DIR"].Description,
		envVars["EMBEDDY_ORIGINS"].Name, envVars["EMBEDDY_ORIGINS"].Description,
		envVars["EMBEDDY_DEBUG"].Name, envVars["EMBEDDY_DEBUG"].Description,
	))

	rootCmd.AddCommand(pullCmd, runCmd, listCmd, serveCmd)
	return rootCmd
}
