// Package logger builds the application-wide structured logger. Development
// and staging environments log human-readable text; production logs JSON.
package logger
