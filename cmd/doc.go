// # Available Commands
//
//   - init: Scaffold the source layout and .devsite.yml
//   - serve: Build, serve the output with live reload and watch the sources
//   - build: Run the build pipeline once, or selected steps
//   - watch: Build and rebuild on change without a server
//   - config: Show or validate the effective configuration
//   - version: Show build information
//
// # Command Examples
//
//	// Scaffold a site in ./site
//	devsite init site
//
//	// Serve on another port and open the browser
//	devsite serve --port 8080 --open
//
//	// Rebuild pages only and print a JSON summary
//	devsite build --step html --output json
//
//	// Run against a different tree
//	DEVSITE_SOURCE_DIR=web DEVSITE_OUTPUT_DIR=public devsite watch
package cmd
