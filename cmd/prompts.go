package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/prompt"
	"github.com/sells-group/claims-cli/internal/store"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage analysis prompt templates",
	Long:  "Commands for listing, creating, activating, importing and exporting prompt templates. At most one template is active.",
}

// openRegistry opens the store and wraps it in a prompt registry with the
// configured fallback prompt.
func openRegistry(ctx context.Context) (store.Store, *prompt.Registry, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return st, prompt.NewRegistry(st, prompt.Default{
		Prompt: cfg.Analysis.DefaultPrompt,
		Model:  cfg.Analysis.DefaultModel,
	}), nil
}

func parsePromptID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid prompt id %q", s)
	}
	return id, nil
}

// -- prompts list --

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ps, err := reg.List(ctx)
		if err != nil {
			return eris.Wrap(err, "prompts list")
		}
		if len(ps) == 0 {
			fmt.Fprintln(os.Stderr, "No prompt templates; the built-in default prompt is used.")
			return nil
		}
		formatPrompts(os.Stdout, ps)
		return nil
	},
}

// formatPrompts writes a tabular listing of templates to w.
func formatPrompts(w io.Writer, ps []model.PromptTemplate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tMODEL\tACTIVE\tUPDATED")
	for _, p := range ps {
		active := ""
		if p.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Version, p.Model, active, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

// -- prompts create / update --

// promptInput reads the shared create/update flags. Content comes from
// --file when set.
func promptInput(cmd *cobra.Command) (prompt.Input, error) {
	name, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetString("version")
	modelName, _ := cmd.Flags().GetString("model")
	content, _ := cmd.Flags().GetString("content")
	file, _ := cmd.Flags().GetString("file")
	activate, _ := cmd.Flags().GetBool("activate")

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return prompt.Input{}, eris.Wrapf(err, "read %s", file)
		}
		content = string(data)
	}
	return prompt.Input{
		Name:     name,
		Version:  version,
		Model:    modelName,
		Content:  content,
		Activate: activate,
	}, nil
}

func addPromptFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "template name")
	cmd.Flags().String("version", "", "template version (default 1.0)")
	cmd.Flags().String("model", "", "target model (default analysis.default_model)")
	cmd.Flags().String("content", "", "prompt text")
	cmd.Flags().String("file", "", "read the prompt text from a file")
}

var promptsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a prompt template",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in, err := promptInput(cmd)
		if err != nil {
			return err
		}
		if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Content) == "" {
			return eris.New("--name and --content (or --file) are required")
		}

		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := reg.Create(ctx, in)
		if err != nil {
			return eris.Wrap(err, "prompts create")
		}
		fmt.Printf("created prompt %d (%s v%s, active=%t)\n", p.ID, p.Name, p.Version, p.IsActive)
		return nil
	},
}

var promptsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a prompt template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parsePromptID(args[0])
		if err != nil {
			return err
		}
		in, err := promptInput(cmd)
		if err != nil {
			return err
		}

		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := reg.Update(ctx, id, in)
		if err != nil {
			return eris.Wrap(err, "prompts update")
		}
		fmt.Printf("updated prompt %d (%s v%s)\n", p.ID, p.Name, p.Version)
		return nil
	},
}

// -- prompts activate / delete --

var promptsActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Make a template the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parsePromptID(args[0])
		if err != nil {
			return err
		}
		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := reg.Activate(ctx, id); err != nil {
			return eris.Wrap(err, "prompts activate")
		}
		fmt.Printf("activated prompt %d\n", id)
		return nil
	},
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an inactive template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parsePromptID(args[0])
		if err != nil {
			return err
		}
		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := reg.Delete(ctx, id); err != nil {
			return eris.Wrap(err, "prompts delete")
		}
		fmt.Printf("deleted prompt %d\n", id)
		return nil
	},
}

// -- prompts import / export / seed --

var promptsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update templates from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := reg.Import(ctx, f)
		if err != nil {
			return eris.Wrap(err, "prompts import")
		}
		fmt.Printf("created %d, updated %d", len(res.Created), len(res.Updated))
		if res.Activated != "" {
			fmt.Printf(", activated %s", res.Activated)
		}
		fmt.Println()
		return nil
	},
}

var promptsExportCmd = &cobra.Command{
	Use:   "export [file.yaml]",
	Short: "Write all templates as YAML (stdout when no file is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var w io.Writer = os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return eris.Wrapf(err, "create %s", args[0])
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return reg.Export(ctx, w)
	},
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the built-in default prompt as the active template when none exists",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, created, err := reg.SeedDefault(ctx)
		if err != nil {
			return eris.Wrap(err, "prompts seed")
		}
		if !created {
			fmt.Println("prompt templates already exist, nothing seeded")
			return nil
		}
		fmt.Printf("seeded prompt %d (%s)\n", p.ID, p.Name)
		return nil
	},
}

func init() {
	addPromptFlags(promptsCreateCmd)
	promptsCreateCmd.Flags().Bool("activate", false, "activate the new template")
	addPromptFlags(promptsUpdateCmd)

	promptsCmd.AddCommand(
		promptsListCmd,
		promptsCreateCmd,
		promptsUpdateCmd,
		promptsActivateCmd,
		promptsDeleteCmd,
		promptsImportCmd,
		promptsExportCmd,
		promptsSeedCmd,
	)
	rootCmd.AddCommand(promptsCmd)
}
