// Package services adapts blocking components to the suture.Service
// interface so they can live in the supervisor tree.
package services
