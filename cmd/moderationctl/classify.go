package main

import (
	"strings"

	"github.com/spf13/cobra"

	"mindpalace/backend/internal/sensitive"
)

var classifyFlags struct {
	kind         string
	lexiconPath  string
	keywordsPath string
}

var classifyCmd = &cobra.Command{
	Use:   "classify TEXT...",
	Short: "Classify text the way the gateway or the REST check would",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := sensitive.New(sensitive.Kind(classifyFlags.kind), sensitive.Options{
			LexiconPath:  classifyFlags.lexiconPath,
			KeywordsPath: classifyFlags.keywordsPath,
		})
		if err != nil {
			return err
		}

		result := classifier.Classify(strings.Join(args, " "))
		return printJSON(cmd, struct {
			sensitive.Result
			ContactDetails bool `json:"contactDetails"`
		}{result, sensitive.ContainsContactDetails(strings.Join(args, " "))})
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyFlags.kind, "kind", string(sensitive.KindLexicon), "classifier: lexicon or keyword")
	classifyCmd.Flags().StringVar(&classifyFlags.lexiconPath, "lexicon", "", "YAML lexicon file")
	classifyCmd.Flags().StringVar(&classifyFlags.keywordsPath, "keywords", "", "YAML keyword table")
	rootCmd.AddCommand(classifyCmd)
}
