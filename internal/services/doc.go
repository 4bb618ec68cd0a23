// Package services sits between the HTTP transport and the search engine:
// it translates engine failures into API errors and owns export rendering.
package services
