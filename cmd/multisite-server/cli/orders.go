package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
)

var (
	setupData     provision.SetupData
	onboardingKey string
)

func init() {
	f := provisionOrderCmd.Flags()
	f.StringVar(&onboardingKey, "token", "", "onboarding token of a paid order (required)")
	f.StringVar(&setupData.CompanyName, "company-name", "", "company name (required)")
	f.StringVar(&setupData.Slug, "slug", "", "requested slug")
	f.StringVar(&setupData.Theme, "theme", "", "theme offered by the order's plan")
	f.StringVar(&setupData.Tagline, "tagline", "", "hero tagline")
	f.StringVar(&setupData.AboutText, "about", "", "about section text")
	f.StringVar(&setupData.PrimaryColor, "primary-color", "", "primary color as #rrggbb")
	f.StringVar(&setupData.SecondaryColor, "secondary-color", "", "secondary color as #rrggbb")
	f.StringVar(&setupData.LogoURL, "logo-url", "", "logo URL")
	f.StringVar(&setupData.ContactPhone, "phone", "", "contact phone")
	f.StringVar(&setupData.WhatsappNumber, "whatsapp", "", "WhatsApp number")
	_ = provisionOrderCmd.MarkFlagRequired("token")
	_ = provisionOrderCmd.MarkFlagRequired("company-name")

	rootCmd.AddCommand(provisionOrderCmd, setupPlansCmd)
}

var provisionOrderCmd = &cobra.Command{
	Use:   "provision-order",
	Short: "Provision the tenant for a paid order",
	Long: `Run onboarding for a paid order on behalf of the buyer. The same checks
apply as for the web form: the token must be unexpired and unspent.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.provisioner.Provision(cmd.Context(), onboardingKey, setupData)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printTitle(out, "Order provisioned")
		printField(out, "Order", result.Order.OrderNumber)
		printField(out, "Tenant", result.Tenant.Slug)
		printField(out, "Site", "https://"+result.Domain.Hostname)
		printField(out, "Owner", result.Owner.Username)
		printSecret(out, "Invitation token", result.InvitationToken)
		return nil
	},
}

var setupPlansCmd = &cobra.Command{
	Use:   "setup-plans",
	Short: "Install or refresh the default plan catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		plans, err := orders.SetupPlans(cmd.Context(), a.db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printTitle(out, fmt.Sprintf("%d plans installed", len(plans)))
		for _, p := range plans {
			printField(out, p.Slug, fmt.Sprintf("%s %d %s", p.Name, p.Price, p.Currency))
		}
		return nil
	},
}
