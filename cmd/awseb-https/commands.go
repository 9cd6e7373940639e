package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/michelfeldheim/awseb-https/internal/provisioner"
)

// Set with -ldflags at build time
var (
	version = "dev"
	commit  = ""
)

type targetFlags struct {
	environment string
	domain      string
	subdomain   string
}

func (f *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.environment, "environment", "e", "", "Elastic Beanstalk environment name")
	cmd.Flags().StringVarP(&f.domain, "domain", "d", "", "Apex domain with a Route53 hosted zone, e.g. example.com")
	cmd.Flags().StringVarP(&f.subdomain, "subdomain", "s", "", "Fully qualified name to alias, e.g. app.example.com")
	_ = cmd.MarkFlagRequired("environment")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("subdomain")
}

func newSetupCmd(o *options) *cobra.Command {
	var f targetFlags

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Request a certificate, open HTTPS and alias a subdomain to the environment",
		Long: `Request a wildcard certificate for *.DOMAIN and wait for it to validate,
allow HTTPS on the environment's load balancer security group, add an HTTPS
listener and point SUBDOMAIN at the load balancer with a Route53 alias record.

Nothing is rolled back when a step fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w, err := o.workflows(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Setting up HTTPS access for EBS environment %s\n", f.environment)

			res, err := w.setup.Run(ctx, provisioner.SetupRequest{
				Environment: f.environment,
				Domain:      f.domain,
				Subdomain:   f.subdomain,
				Tags:        o.cfg.Tags,
			})
			o.pushMetrics(ctx, w.metrics)
			if err != nil {
				if len(res.Created) > 0 {
					o.log.Info("Resources created before the failure were left in place", "resources", res.Created)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Success site is now available at https://%s\n", f.subdomain)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func newDeleteAliasCmd(o *options) *cobra.Command {
	var f targetFlags

	cmd := &cobra.Command{
		Use:   "delete-alias",
		Short: "Delete the alias record pointing SUBDOMAIN at the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w, err := o.workflows(ctx)
			if err != nil {
				return err
			}

			res, err := w.teardown.RemoveAlias(ctx, provisioner.AliasTeardownRequest{
				Environment: f.environment,
				Domain:      f.domain,
				Subdomain:   f.subdomain,
			})
			o.pushMetrics(ctx, w.metrics)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed alias %s from hosted zone %s\n", f.subdomain, res.ZoneID)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func newDeleteCertificateCmd(o *options) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "delete-certificate",
		Short: "Delete the wildcard certificate issued for *.DOMAIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w, err := o.workflows(ctx)
			if err != nil {
				return err
			}

			res, err := w.teardown.RemoveCertificate(ctx, domain)
			o.pushMetrics(ctx, w.metrics)
			if err != nil {
				return err
			}

			if res.State == provisioner.StateCertAbsent {
				fmt.Fprintf(cmd.OutOrStdout(), "No certificate found for %s\n", provisioner.WildcardDomain(domain))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted certificate %s\n", res.CertificateArn)
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Apex domain the certificate was issued for")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skip config loading and logger setup
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			rev := commit
			if rev == "" {
				if info, ok := debug.ReadBuildInfo(); ok {
					for _, s := range info.Settings {
						if s.Key == "vcs.revision" {
							rev = s.Value
						}
					}
				}
			}
			if rev == "" {
				rev = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "awseb-https %s (%s)\n", version, rev)
		},
	}
}
