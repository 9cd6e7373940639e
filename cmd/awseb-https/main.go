// Command awseb-https sets up and tears down HTTPS access for Elastic
// Beanstalk load balanced environments.
package main

import (
	"fmt"
	"os"

	ctrl "sigs.k8s.io/controller-runtime"
)

func main() {
	ctx := ctrl.SetupSignalHandler()

	if err := newRootCmd(sdkClients, leaseLocker).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
