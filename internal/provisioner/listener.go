package provisioner

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/michelfeldheim/awseb-https/internal/aws"
)

const (
	HTTPPort  int32 = 80
	HTTPSPort int32 = 443
)

// ListenerConfigurator puts an HTTPS listener in front of an environment
type ListenerConfigurator struct {
	ELB aws.ELBClient
	Log logr.Logger
}

// ConfigureHTTPS redirects the HTTP:80 listener to HTTPS and creates an
// HTTPS:443 listener forwarding to the first target group with the
// certificate. An existing HTTPS:443 listener is switched to the certificate.
func (c *ListenerConfigurator) ConfigureHTTPS(ctx context.Context, lb *LoadBalancerIdentity, certificateArn string, tags map[string]string) error {
	listeners, err := c.listListeners(ctx, lb.Arn)
	if err != nil {
		err = fmt.Errorf("failed to list listeners of %s: %w", lb.Arn, err)
		c.Log.Error(err, "Listener lookup failed", "loadBalancer", lb.Arn)
		return err
	}

	var httpListener, httpsListener *aws.Listener
	for i := range listeners {
		l := &listeners[i]
		switch {
		case strings.EqualFold(l.Protocol, "HTTP") && l.Port == HTTPPort:
			httpListener = l
		case strings.EqualFold(l.Protocol, "HTTPS") && l.Port == HTTPSPort:
			httpsListener = l
		}
	}

	if httpListener == nil {
		err := &NotFoundError{Kind: "HTTP listener", Key: lb.Arn}
		c.Log.Error(err, "Cannot redirect to HTTPS", "loadBalancer", lb.Arn)
		return err
	}
	if err := c.redirect(ctx, httpListener.Arn); err != nil {
		err = fmt.Errorf("failed to redirect listener %s to HTTPS: %w", httpListener.Arn, err)
		c.Log.Error(err, "Redirect failed", "listener", httpListener.Arn)
		return err
	}
	c.Log.Info("Redirected HTTP listener to HTTPS", "listener", httpListener.Arn)

	if httpsListener != nil {
		return c.useCertificate(ctx, httpsListener, certificateArn)
	}

	targetGroups, err := c.listTargetGroups(ctx, lb.Arn)
	if err != nil {
		err = fmt.Errorf("failed to list target groups of %s: %w", lb.Arn, err)
		c.Log.Error(err, "Target group lookup failed", "loadBalancer", lb.Arn)
		return err
	}
	if len(targetGroups) == 0 {
		err := &NotFoundError{Kind: "target group", Key: lb.Arn}
		c.Log.Error(err, "Cannot create HTTPS listener", "loadBalancer", lb.Arn)
		return err
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	arn, err := c.ELB.CreateHTTPSListener(awsCtx, aws.HTTPSListener{
		LoadBalancerArn: lb.Arn,
		TargetGroupArn:  targetGroups[0].Arn,
		CertificateArn:  certificateArn,
		Port:            HTTPSPort,
		Tags:            tags,
	})
	if err != nil {
		err = fmt.Errorf("failed to create HTTPS listener on %s: %w", lb.Arn, err)
		c.Log.Error(err, "Listener creation failed", "loadBalancer", lb.Arn)
		return err
	}

	c.Log.Info("Created HTTPS listener", "listener", arn, "targetGroup", targetGroups[0].Arn, "certificate", certificateArn)
	return nil
}

// useCertificate makes certificateArn the default certificate of an existing
// HTTPS listener
func (c *ListenerConfigurator) useCertificate(ctx context.Context, listener *aws.Listener, certificateArn string) error {
	if listener.CertificateArn == certificateArn {
		c.Log.Info("HTTPS listener already uses certificate", "listener", listener.Arn, "certificate", certificateArn)
		return nil
	}

	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()

	if err := c.ELB.SetDefaultCertificate(awsCtx, listener.Arn, certificateArn); err != nil {
		err = fmt.Errorf("failed to set certificate of HTTPS listener %s: %w", listener.Arn, err)
		c.Log.Error(err, "Certificate not attached", "listener", listener.Arn, "certificate", certificateArn)
		return err
	}
	c.Log.Info("Replaced HTTPS listener certificate", "listener", listener.Arn, "certificate", certificateArn, "previous", listener.CertificateArn)
	return nil
}

func (c *ListenerConfigurator) listListeners(ctx context.Context, lbArn string) ([]aws.Listener, error) {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()
	return c.ELB.ListListeners(awsCtx, lbArn)
}

func (c *ListenerConfigurator) listTargetGroups(ctx context.Context, lbArn string) ([]aws.TargetGroup, error) {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()
	return c.ELB.ListTargetGroups(awsCtx, lbArn)
}

func (c *ListenerConfigurator) redirect(ctx context.Context, listenerArn string) error {
	awsCtx, cancel := context.WithTimeout(ctx, AWSCallTimeout)
	defer cancel()
	return c.ELB.RedirectListenerToHTTPS(awsCtx, listenerArn, HTTPSPort)
}
