package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
)

var (
	tenantReq      provision.TenantRequest
	tenantTemplate string
	listAll        bool
	listSearch     string
)

func init() {
	f := createTenantCmd.Flags()
	f.StringVar(&tenantReq.Name, "name", "", "tenant display name (required)")
	f.StringVar(&tenantReq.Slug, "slug", "", "tenant slug, derived from the name when empty")
	f.StringVar(&tenantReq.Domain, "domain", "", "primary custom hostname")
	f.StringSliceVar(&tenantReq.ExtraDomains, "extra-domain", nil, "additional hostnames (repeatable)")
	f.StringVar(&tenantTemplate, "template", string(models.TemplateCustom), "industry preset")
	f.StringVar(&tenantReq.Email, "email", "", "contact and owner email")
	f.StringVar(&tenantReq.Phone, "phone", "", "contact phone")
	f.StringVar(&tenantReq.Username, "username", "", "owner username, admin_<slug> when empty")
	f.StringVar(&tenantReq.Password, "password", "", "owner password; an invitation is issued when empty")
	f.StringVar(&tenantReq.PrimaryColor, "primary-color", "", "primary color as #rrggbb")
	f.StringVar(&tenantReq.SecondaryColor, "secondary-color", "", "secondary color as #rrggbb")
	f.BoolVar(&tenantReq.SetupFeePaid, "setup-fee-paid", false, "mark the setup fee as settled so the site is served")
	f.BoolVar(&tenantReq.NoContent, "no-content", false, "skip seeding sections and services")
	f.BoolVar(&tenantReq.NoOwner, "no-owner", false, "skip creating the owner account")
	_ = createTenantCmd.MarkFlagRequired("name")

	listTenantsCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include inactive tenants")
	listTenantsCmd.Flags().StringVarP(&listSearch, "search", "s", "", "filter by name or slug")

	rootCmd.AddCommand(createTenantCmd, listTenantsCmd)
}

var createTenantCmd = &cobra.Command{
	Use:   "create-tenant",
	Short: "Create a tenant without a paid order",
	Long: `Create a tenant with its domains, settings, owner account and starter
content in one transaction. Nothing is written when any part fails.`,
	Example: `  multisite-server create-tenant --name "Acme Electricidad" --domain www.acme.cl --template electricidad --email ana@acme.cl`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		tenantReq.Template = models.Template(tenantTemplate)
		result, err := a.provisioner.CreateTenant(cmd.Context(), tenantReq)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printTitle(out, "Tenant created")
		printField(out, "Name", result.Tenant.Name)
		printField(out, "Slug", result.Tenant.Slug)
		printField(out, "ID", result.Tenant.ID.String())
		for _, d := range result.Domains {
			label := "Domain"
			if d.IsPrimary {
				label = "Domain (primary)"
			}
			printField(out, label, d.Hostname)
		}
		if result.Owner != nil {
			printField(out, "Owner", result.Owner.Username)
		}
		printField(out, "Sections", strconv.Itoa(result.Sections))
		printField(out, "Services", strconv.Itoa(result.Services))
		printSecret(out, "Invitation token", result.InvitationToken)
		return nil
	},
}

var listTenantsCmd = &cobra.Command{
	Use:   "list-tenants",
	Short: "List tenants and their primary domain",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		tenants, err := a.registry.List(cmd.Context(), registry.ListFilter{
			ActiveOnly: !listAll,
			Search:     listSearch,
		})
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tenants found.")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), tenantTable(tenants))
		return nil
	},
}

func tenantTable(tenants []models.Tenant) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SLUG", "NAME", "ACTIVE", "PRIMARY DOMAIN", "DOMAINS").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	for _, tenant := range tenants {
		primary := "-"
		for _, d := range tenant.Domains {
			if d.IsPrimary {
				primary = d.Hostname
			}
		}
		active := "no"
		if tenant.IsActive {
			active = "yes"
		}
		t.Row(tenant.Slug, tenant.Name, active, primary, strconv.Itoa(len(tenant.Domains)))
	}
	return t.String()
}
