// Package config defines the settings shared by the wikiload and
// facetload commands.
//
// Settings can be provided via:
//   - Command-line flags
//   - Environment variables (WIKILOAD_ prefix)
//   - YAML settings file
//
// Flags override the environment, which overrides the file, which
// overrides Default.
//
// # Structure
//
//	type Config struct {
//	    ListingURL      string
//	    Wiki            string
//	    WorkDir         string
//	    RetainDownloads bool
//	    Progress        bool
//	    LogLevel        string
//	    LogFormat       string
//	    LogBucket       string
//	    HTTP            HTTPConfig
//	    Ingest          JobConfig
//	    Facet           JobConfig
//	}
//
// The Ingest and Facet jobs default to the Maven exec plugin running the
// loader main classes with an 8g heap.
package config
