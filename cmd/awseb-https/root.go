package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/michelfeldheim/awseb-https/internal/aws"
	"github.com/michelfeldheim/awseb-https/internal/claim"
	"github.com/michelfeldheim/awseb-https/internal/config"
	"github.com/michelfeldheim/awseb-https/internal/provisioner"
)

const metricsJob = "awseb-https"

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

// clientFactory creates the AWS service clients for a region and profile
type clientFactory func(ctx context.Context, region, profile string) (*aws.Clients, error)

func sdkClients(ctx context.Context, region, profile string) (*aws.Clients, error) {
	cfg, err := aws.LoadConfig(ctx, profile, region)
	if err != nil {
		return nil, err
	}
	return aws.NewSDKClients(cfg), nil
}

// lockerFactory creates the claim locker when claims are enabled
type lockerFactory func(cfg config.ClaimConfig, log logr.Logger) (claim.Locker, error)

func leaseLocker(cfg config.ClaimConfig, log logr.Logger) (claim.Locker, error) {
	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("claims need a Kubernetes API: %w", err)
	}
	k8sClient, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return &claim.LeaseLocker{
		Client:    k8sClient,
		Namespace: cfg.Namespace,
		Holder:    cfg.Holder,
		Duration:  cfg.Duration.Duration,
		Log:       log,
	}, nil
}

// options is shared by all commands
type options struct {
	configPath  string
	region      string
	profile     string
	pushgateway string
	zapOpts     zap.Options

	newClients clientFactory
	newLocker  lockerFactory

	cfg *config.Config
	log logr.Logger
}

func newRootCmd(newClients clientFactory, newLocker lockerFactory) *cobra.Command {
	if newLocker == nil {
		newLocker = leaseLocker
	}
	o := &options{
		newClients: newClients,
		newLocker:  newLocker,
		zapOpts:    zap.Options{Development: true},
	}
	o.zapOpts.StacktraceLevel = zapcore.FatalLevel

	cmd := &cobra.Command{
		Use:           "awseb-https",
		Short:         "Set up HTTPS access for Elastic Beanstalk environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.complete(cmd)
		},
	}

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	o.zapOpts.BindFlags(zapFlags)
	cmd.PersistentFlags().AddGoFlagSet(zapFlags)

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "Path to an optional YAML configuration file")
	cmd.PersistentFlags().StringVar(&o.region, "region", "", "AWS region, overrides the config file and shared AWS config")
	cmd.PersistentFlags().StringVar(&o.profile, "profile", "", "AWS shared config profile")
	cmd.PersistentFlags().StringVar(&o.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL to push run metrics to")

	cmd.AddCommand(newSetupCmd(o))
	cmd.AddCommand(newDeleteAliasCmd(o))
	cmd.AddCommand(newDeleteCertificateCmd(o))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// complete sets up logging and loads the configuration
func (o *options) complete(cmd *cobra.Command) error {
	logger := zap.New(zap.UseFlagOptions(&o.zapOpts), zap.WriteTo(cmd.ErrOrStderr()))
	ctrl.SetLogger(logger)
	o.log = logger.WithName("awseb-https")

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.region != "" {
		cfg.Region = o.region
	}
	if o.profile != "" {
		cfg.Profile = o.profile
	}
	if o.pushgateway != "" {
		cfg.Metrics.Pushgateway = o.pushgateway
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	o.cfg = cfg
	return nil
}

// workflows wires the provisioner components from the configuration
type workflows struct {
	setup    *provisioner.SetupWorkflow
	teardown *provisioner.TeardownWorkflow
	metrics  *provisioner.Metrics
}

func (o *options) workflows(ctx context.Context) (*workflows, error) {
	clients, err := o.newClients(ctx, o.cfg.Region, o.cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS clients: %w", err)
	}

	awsCtx, cancel := context.WithTimeout(ctx, provisioner.AWSCallTimeout)
	defer cancel()
	identity, err := clients.STS.CallerIdentity(awsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify AWS credentials: %w", err)
	}
	o.log.Info("AWS identity verified", "account", identity.Account, "arn", identity.Arn, "region", o.cfg.Region)

	var locker claim.Locker = claim.NopLocker{}
	if o.cfg.Claim.Enabled {
		locker, err = o.newLocker(o.cfg.Claim, o.log.WithName("claim"))
		if err != nil {
			return nil, err
		}
	}

	policy := o.cfg.AmbiguityPolicy()
	metrics := provisioner.NewMetrics()

	dns := &provisioner.DnsAliasManager{
		Route53:               clients.Route53,
		Ambiguity:             policy,
		IgnoreMissingOnDelete: o.cfg.DNS.IgnoreMissingOnDelete,
		Log:                   o.log.WithName("dns"),
	}
	certs := &provisioner.CertificateProvisioner{
		ACM:               clients.ACM,
		PollInterval:      o.cfg.Certificate.PollInterval.Duration,
		ValidationTimeout: o.cfg.Certificate.ValidationTimeout.Duration,
		Ambiguity:         policy,
		Metrics:           metrics,
		Log:               o.log.WithName("certificate"),
	}
	if o.cfg.Certificate.PublishValidationRecords {
		certs.Publisher = dns
	}
	lbs := &provisioner.LoadBalancerLocator{
		ELB:       clients.ELB,
		Ambiguity: policy,
		Log:       o.log.WithName("loadbalancer"),
	}

	w := &workflows{
		setup: &provisioner.SetupWorkflow{
			Certificates: certs,
			Ingress: &provisioner.NetworkSecurityEditor{
				EC2:        clients.EC2,
				Idempotent: o.cfg.Ingress.Idempotent,
				Ambiguity:  policy,
				Log:        o.log.WithName("ingress"),
			},
			LoadBalancers: lbs,
			DNS:           dns,
			Claims:        locker,
			Metrics:       metrics,
			Log:           o.log.WithName("setup"),
		},
		teardown: &provisioner.TeardownWorkflow{
			Certificates:  certs,
			LoadBalancers: lbs,
			DNS:           dns,
			Claims:        locker,
			Metrics:       metrics,
			Log:           o.log.WithName("teardown"),
		},
		metrics: metrics,
	}
	if o.cfg.LoadBalancer.ConfigureListeners {
		w.setup.Listeners = &provisioner.ListenerConfigurator{ELB: clients.ELB, Log: o.log.WithName("listener")}
	}
	return w, nil
}

// pushMetrics pushes run metrics when a Pushgateway is configured. Failures
// are logged and do not change the command result.
func (o *options) pushMetrics(ctx context.Context, metrics *provisioner.Metrics) {
	if o.cfg.Metrics.Pushgateway == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisioner.AWSCallTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, o.cfg.Metrics.Pushgateway, metricsJob); err != nil {
		o.log.Error(err, "Failed to push metrics")
	}
}
