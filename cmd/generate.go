package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quillworks/cento/internal/quote"
	"github.com/quillworks/cento/internal/scene"
	"github.com/quillworks/cento/internal/session"
)

var (
	generateSpecPath    string
	generatePremise     string
	generateCharacters  string
	generateThemes      []string
	generateSpeeches    int
	generateOutput      string
	generateSessionPath string
	generateAttribution bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a scene assembled from indexed fragments",
	Long: `Generate a short dramatic scene whose every line is a verbatim
fragment from the index.

The scene request comes either from a YAML file (--spec) or from --premise
and --characters flags. A language model plans the speeches and selects
fragments; the orchestrator guarantees no fragment appears twice.

Required environment variables:
  OPENAI_API_KEY   - OpenAI API key for embeddings and planning

Examples:
  cento generate --spec scene.yaml
  cento generate --premise "two rivals reconcile at a grave" --characters "Orsino: a lovesick duke; Viola: quick-witted, disguised"
  cento generate --premise "a crown changes hands" --characters "Richard; Bolingbroke" --themes power,betrayal
  cento generate --spec scene.yaml --output scene.txt --session run.json`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&generateSpecPath, "spec", "", "YAML scene request file")
	generateCmd.Flags().StringVar(&generatePremise, "premise", "", "Scene premise (alternative to --spec)")
	generateCmd.Flags().StringVar(&generateCharacters, "characters", "", `Characters as "Name: description; Name2: description2"`)
	generateCmd.Flags().StringSliceVar(&generateThemes, "themes", nil, "Themes to weave through the scene")
	generateCmd.Flags().IntVar(&generateSpeeches, "speeches", 0, "Number of speeches to plan (default: two per character)")
	generateCmd.Flags().StringVar(&generateOutput, "output", "", "Write the scene to a file instead of stdout")
	generateCmd.Flags().StringVar(&generateSessionPath, "session", "", "Save the usage session to a JSON file")
	generateCmd.Flags().BoolVar(&generateAttribution, "attribution", false, "Print source attribution for every quote")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	spec, err := loadSceneSpec()
	if err != nil {
		return err
	}

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F780FF")).Bold(true)
	sceneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#E9E9F4"))
	contextStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4")).Italic(true)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("the fragment index is empty; run 'cento index' first")
	}

	embedder, err := quote.NewOpenAIEmbedder(cfg.EmbeddingModel, cfg.EmbeddingDimension)
	if err != nil {
		return err
	}
	retriever, err := quote.NewRetriever(embedder, store)
	if err != nil {
		return err
	}

	oracle, err := scene.NewOpenAIOracle(cfg.ChatModel)
	if err != nil {
		return err
	}

	orchestrator, err := scene.NewOrchestrator(oracle, retriever, scene.DefaultBudgets())
	if err != nil {
		return err
	}

	fmt.Println(contextStyle.Render(fmt.Sprintf("→ Generating scene from %d indexed fragments...", count)))

	sess := session.New()
	result, err := orchestrator.Generate(ctx, spec, sess)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if generateOutput != "" {
		if err := os.WriteFile(generateOutput, []byte(scene.Assemble(result)), 0o644); err != nil {
			return fmt.Errorf("failed to write scene: %w", err)
		}
		// A machine-readable copy with full fragment provenance.
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode scene: %w", err)
		}
		jsonPath := strings.TrimSuffix(generateOutput, filepath.Ext(generateOutput)) + ".json"
		if err := os.WriteFile(jsonPath, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write scene json: %w", err)
		}
		fmt.Println(contextStyle.Render(fmt.Sprintf("✓ Scene written to %s (details in %s)", generateOutput, jsonPath)))
	} else {
		fmt.Println()
		fmt.Println(headerStyle.Render("Scene:"))
		fmt.Println()
		fmt.Println(sceneStyle.Render(scene.FormatScene(result)))
	}

	if generateAttribution {
		fmt.Println(headerStyle.Render("Attribution:"))
		fmt.Println(contextStyle.Render(scene.Attribution(result)))
	}

	if generateSessionPath != "" {
		if err := sess.Save(generateSessionPath); err != nil {
			return err
		}
		fmt.Println(contextStyle.Render("✓ Session saved to " + generateSessionPath))
	}
	return nil
}

// loadSceneSpec builds the scene request from --spec or from flags.
func loadSceneSpec() (scene.Spec, error) {
	var spec scene.Spec

	if generateSpecPath != "" {
		data, err := os.ReadFile(generateSpecPath)
		if err != nil {
			return spec, fmt.Errorf("failed to read scene spec: %w", err)
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return spec, fmt.Errorf("failed to parse scene spec: %w", err)
		}
	} else {
		spec.Premise = generatePremise
		spec.Characters = parseCharacters(generateCharacters)
	}

	if len(generateThemes) > 0 {
		spec.Themes = generateThemes
	}
	if generateSpeeches > 0 {
		spec.Speeches = generateSpeeches
	}
	if spec.Premise == "" {
		return spec, fmt.Errorf("a scene premise is required (--spec or --premise)")
	}
	if len(spec.Characters) == 0 {
		return spec, fmt.Errorf("at least one character is required (--spec or --characters)")
	}
	return spec, nil
}

// parseCharacters reads the "Name: description; Name2: description2" flag
// syntax. The description is optional.
func parseCharacters(raw string) []scene.Character {
	var characters []scene.Character
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, description, _ := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		characters = append(characters, scene.Character{
			Name:        name,
			Description: strings.TrimSpace(description),
		})
	}
	return characters
}
