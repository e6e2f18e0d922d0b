package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franckalain/healthwise/internal/catalog"
	"github.com/franckalain/healthwise/internal/flows"
	"github.com/franckalain/healthwise/internal/models"
)

var profileFlags struct {
	name       string
	age        int
	gender     string
	conditions string
}

var productFlags struct {
	id          string
	image       string
	ingredients string
	calories    float64
	sugar       float64
	sodium      float64
	fat         float64
}

func addProfileFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&profileFlags.name, "name", "", "your name")
	f.IntVar(&profileFlags.age, "age", 0, "your age")
	f.StringVar(&profileFlags.gender, "gender", "", "male, female or other")
	f.StringVar(&profileFlags.conditions, "conditions", "", "comma separated medical conditions")
}

func profileFromFlags() models.HealthProfile {
	p := models.HealthProfile{
		Name:              profileFlags.name,
		Age:               profileFlags.age,
		Gender:            models.Gender(profileFlags.gender),
		MedicalConditions: profileFlags.conditions,
	}
	p.Normalize()
	return p
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Assess one product against a health profile",
	Long: `Assess a product from the demo catalog (--product), a photo (--image)
or nutrient values given as flags.

Example:
  healthwise analyze --product prod2 --name Jane --conditions diabetes`,
	RunE: runAnalyze,
}

func init() {
	addProfileFlags(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVar(&productFlags.id, "product", "", "catalog product id (see the products list)")
	f.StringVar(&productFlags.image, "image", "", "path to a product photo")
	f.StringVar(&productFlags.ingredients, "ingredients", "", "ingredient list")
	f.Float64Var(&productFlags.calories, "calories", 0, "calories per serving (kcal)")
	f.Float64Var(&productFlags.sugar, "sugar", 0, "sugar per serving (g)")
	f.Float64Var(&productFlags.sodium, "sodium", 0, "sodium per serving (mg)")
	f.Float64Var(&productFlags.fat, "fat", 0, "fat per serving (g)")
	analyzeCmd.MarkFlagsMutuallyExclusive("product", "image", "ingredients")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	profile := profileFromFlags()
	if !profile.Complete() {
		return fmt.Errorf("--name and --conditions are required for an analysis")
	}

	var (
		image   *models.ProductImage
		details models.ProductDetails
	)
	switch {
	case productFlags.image != "":
		data, err := os.ReadFile(productFlags.image)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		image = &models.ProductImage{MIMEType: http.DetectContentType(data), Data: data}
	case productFlags.id != "":
		p, ok := catalog.Lookup(productFlags.id)
		if !ok {
			return fmt.Errorf("unknown product %q", productFlags.id)
		}
		details = p.Details
	default:
		details = models.ProductDetails{
			Ingredients: productFlags.ingredients,
			Calories:    productFlags.calories,
			Sugar:       productFlags.sugar,
			Sodium:      productFlags.sodium,
			Fat:         productFlags.fat,
		}
	}

	fl, closeModel, err := openFlows(ctx)
	if err != nil {
		return err
	}
	defer closeModel()

	var res *models.AnalysisResult
	if image != nil {
		res, err = fl.AnalyzeProductImage(ctx, flows.AnalyzeProductImageInput{HealthProfile: profile, Image: image})
	} else {
		res, err = fl.AnalyzeProduct(ctx, flows.AnalyzeProductInput{HealthProfile: profile, ProductDetails: details})
	}
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the health assistant a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		fl, closeModel, err := openFlows(ctx)
		if err != nil {
			return err
		}
		defer closeModel()

		out, err := fl.AnswerHealthQuery(ctx, flows.AnswerHealthQueryInput{
			Query:            strings.Join(args, " "),
			HealthConditions: profileFlags.conditions,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
		return nil
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print a motivational quote for your conditions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		fl, closeModel, err := openFlows(ctx)
		if err != nil {
			return err
		}
		defer closeModel()

		out, err := fl.GenerateMotivationalQuote(ctx, flows.GenerateMotivationalQuoteInput{
			HealthConditions: profileFlags.conditions,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Quote)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, quoteCmd} {
		cmd.Flags().StringVar(&profileFlags.conditions, "conditions", "", "comma separated medical conditions")
	}
}
