// Package testsupport builds isolated configs and stores for package tests.
package testsupport
