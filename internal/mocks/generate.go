// Package mocks provides mock implementations for testing the toolpack export system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockExportJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for ExportJobRepository interface from internal/core package.
// This creates MockExportJobRepository with methods for all ExportJobRepository interface methods:
// Create, GetByID, ClaimNext, Transition, IncrementStep, RequestCancel, CancelRequested, WaitForNotification, Stats
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=export_job_repository_mock.go github.com/formgrid/toolpack/internal/core ExportJobRepository

// Generate mock for ToolRepository interface from internal/core package.
// This creates MockToolRepository with methods for all ToolRepository interface methods:
// GetMeta, GetSnapshot
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=tool_repository_mock.go github.com/formgrid/toolpack/internal/core ToolRepository

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete, Health
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/formgrid/toolpack/internal/core CacheRepository
