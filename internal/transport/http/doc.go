// Package http exposes the holdings search over HTTP: JSON search, workbook
// export downloads and the health endpoints.
package http
