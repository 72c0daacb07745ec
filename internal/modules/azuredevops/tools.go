package azuredevops

import (
	"context"

	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/modules"
)

const (
	toolProjects               = "azure_devops_projects"
	toolWorkItem               = "azure_devops_work_item"
	toolWorkItems              = "azure_devops_work_items"
	toolRepositories           = "azure_devops_repositories"
	toolPullRequests           = "azure_devops_pull_requests"
	toolPullRequestByID        = "azure_devops_pull_request_by_id"
	toolPullRequestThreads     = "azure_devops_pull_request_threads"
	toolWorkItemAttachments    = "azure_devops_work_item_attachments"
	toolWorkItemLinks          = "azure_devops_work_item_links"
	toolLinkedWorkItems        = "azure_devops_linked_work_items"
	toolPullRequestChanges     = "azure_devops_pull_request_changes"
	toolPullRequestFileContent = "azure_devops_pull_request_file_content"
	toolBranchFileContent      = "azure_devops_branch_file_content"
	toolCreatePRComment        = "azure_devops_create_pr_comment"
	toolWorkItemComments       = "azure_devops_work_item_comments"
	toolTestPlans              = "azure_devops_test_plans"
	toolTestPlan               = "azure_devops_test_plan"
	toolTestSuites             = "azure_devops_test_suites"
	toolTestSuite              = "azure_devops_test_suite"
	toolTestCases              = "azure_devops_test_cases"
)

type toolHandler func(m *Module, ctx context.Context, params map[string]any) (any, error)

var toolHandlers = map[string]toolHandler{
	toolProjects:               (*Module).projects,
	toolWorkItem:               (*Module).workItem,
	toolWorkItems:              (*Module).workItems,
	toolRepositories:           (*Module).repositories,
	toolPullRequests:           (*Module).pullRequests,
	toolPullRequestByID:        (*Module).pullRequestByID,
	toolPullRequestThreads:     (*Module).pullRequestThreads,
	toolWorkItemAttachments:    (*Module).workItemAttachments,
	toolWorkItemLinks:          (*Module).workItemLinks,
	toolLinkedWorkItems:        (*Module).linkedWorkItems,
	toolPullRequestChanges:     (*Module).pullRequestChanges,
	toolPullRequestFileContent: (*Module).pullRequestFileContent,
	toolBranchFileContent:      (*Module).branchFileContent,
	toolCreatePRComment:        (*Module).createPRComment,
	toolWorkItemComments:       (*Module).workItemComments,
	toolTestPlans:              (*Module).testPlans,
	toolTestPlan:               (*Module).testPlan,
	toolTestSuites:             (*Module).testSuites,
	toolTestSuite:              (*Module).testSuite,
	toolTestCases:              (*Module).testCases,
}

// =============================================================================
// Shared Properties
// =============================================================================

var (
	propWorkItemID    = modules.Property{Type: "integer", Description: "Work item ID"}
	propRepositoryID  = modules.Property{Type: "string", Description: "Repository ID"}
	propPullRequestID = modules.Property{Type: "integer", Description: "Pull request ID"}
	propProject       = modules.Property{Type: "string", Description: "Project name (defaults to the configured project)"}
	propFilePath      = modules.Property{Type: "string", Description: "File path"}
	propTestPlanID    = modules.Property{Type: "integer", Description: "Test plan ID"}
	propTestSuiteID   = modules.Property{Type: "integer", Description: "Test suite ID"}

	propStartPosition = modules.Property{
		Type:        "integer",
		Description: "Starting position in the file (bytes) - only used when returnPlainText=false",
		Default:     float64(0),
	}
	propLength = modules.Property{
		Type:        "integer",
		Description: "Length to read (bytes) - only used when returnPlainText=false",
		Default:     float64(filecontent.DefaultChunkSize),
	}
	propReturnPlainText = modules.Property{
		Type:        "boolean",
		Description: "When true (default), returns complete file as plain text; when false, returns JSON with chunk details",
		Default:     true,
	}
)

func schema(required []string, props map[string]modules.Property) modules.InputSchema {
	if props == nil {
		props = map[string]modules.Property{}
	}
	return modules.InputSchema{Type: "object", Properties: props, Required: required}
}

// =============================================================================
// Tool Definitions
// =============================================================================

var toolDefinitions = []modules.Tool{
	// =========================================================================
	// Core
	// =========================================================================
	{
		Name:        toolProjects,
		Description: "List all projects",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema(nil, nil),
	},
	{
		Name:        toolRepositories,
		Description: "List all repositories",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema(nil, map[string]modules.Property{
			"project": propProject,
		}),
	},

	// =========================================================================
	// Work Items
	// =========================================================================
	{
		Name:        toolWorkItem,
		Description: "Get a work item by ID",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"id"}, map[string]modules.Property{
			"id": propWorkItemID,
		}),
	},
	{
		Name:        toolWorkItems,
		Description: "Get multiple work items by IDs",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"ids"}, map[string]modules.Property{
			"ids": {Type: "array", Description: "Array of work item IDs", Items: &modules.Property{Type: "integer"}},
		}),
	},
	{
		Name:        toolWorkItemAttachments,
		Description: "Get attachments for a specific work item",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"id"}, map[string]modules.Property{
			"id": propWorkItemID,
		}),
	},
	{
		Name:        toolWorkItemLinks,
		Description: "Get links for a specific work item",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"id"}, map[string]modules.Property{
			"id": propWorkItemID,
		}),
	},
	{
		Name:        toolLinkedWorkItems,
		Description: "Get all linked work items with their full details",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"id"}, map[string]modules.Property{
			"id": propWorkItemID,
		}),
	},
	{
		Name:        toolWorkItemComments,
		Description: "Get comments for a specific work item",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"id"}, map[string]modules.Property{
			"id":      propWorkItemID,
			"project": {Type: "string", Description: "Project name (defaults to the work item's project)"},
		}),
	},

	// =========================================================================
	// Pull Requests
	// =========================================================================
	{
		Name:        toolPullRequests,
		Description: "List all pull requests for a repository",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId"}, map[string]modules.Property{
			"repositoryId": propRepositoryID,
			"project":      propProject,
		}),
	},
	{
		Name:        toolPullRequestByID,
		Description: "Get a pull request by ID",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId", "pullRequestId"}, map[string]modules.Property{
			"repositoryId":  propRepositoryID,
			"pullRequestId": propPullRequestID,
			"project":       propProject,
		}),
	},
	{
		Name:        toolPullRequestThreads,
		Description: "Get threads from a pull request",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId", "pullRequestId"}, map[string]modules.Property{
			"repositoryId":  propRepositoryID,
			"pullRequestId": propPullRequestID,
			"project":       propProject,
		}),
	},
	{
		Name:        toolPullRequestChanges,
		Description: "Get detailed code changes for a pull request",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId", "pullRequestId"}, map[string]modules.Property{
			"repositoryId":  propRepositoryID,
			"pullRequestId": propPullRequestID,
			"project":       propProject,
		}),
	},
	{
		Name: toolPullRequestFileContent,
		Description: "Get the content of a specific file in a pull request. By default returns the complete file as plain text. " +
			"Set returnPlainText=false to get content in chunks with metadata. Has a 5-minute timeout per chunk for large files.",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId", "pullRequestId", "filePath", "objectId"}, map[string]modules.Property{
			"repositoryId":    propRepositoryID,
			"pullRequestId":   propPullRequestID,
			"filePath":        propFilePath,
			"objectId":        {Type: "string", Description: "Object ID of the file version"},
			"startPosition":   propStartPosition,
			"length":          propLength,
			"project":         propProject,
			"returnPlainText": propReturnPlainText,
		}),
	},
	{
		Name: toolBranchFileContent,
		Description: "Get the content of a file directly from a branch. By default returns the complete file as plain text. " +
			"Set returnPlainText=false to get content in chunks with metadata. Has a 5-minute timeout per chunk for large files.",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"repositoryId", "branchName", "filePath"}, map[string]modules.Property{
			"repositoryId":    propRepositoryID,
			"branchName":      {Type: "string", Description: "Branch name"},
			"filePath":        propFilePath,
			"startPosition":   propStartPosition,
			"length":          propLength,
			"project":         propProject,
			"returnPlainText": propReturnPlainText,
		}),
	},
	{
		Name:        toolCreatePRComment,
		Description: "Create a comment on a pull request",
		Annotations: modules.AnnotateCreate,
		InputSchema: schema([]string{"repositoryId", "pullRequestId", "content"}, map[string]modules.Property{
			"repositoryId":    propRepositoryID,
			"pullRequestId":   propPullRequestID,
			"project":         propProject,
			"content":         {Type: "string", Description: "Comment text"},
			"threadId":        {Type: "integer", Description: "Thread ID (if adding to existing thread)"},
			"filePath":        {Type: "string", Description: "File path (if commenting on a file)"},
			"lineNumber":      {Type: "integer", Description: "Line number (if commenting on a specific line)"},
			"parentCommentId": {Type: "integer", Description: "Parent comment ID (if replying to a comment)"},
			"status":          {Type: "string", Description: `Comment status (e.g., "active", "fixed")`},
		}),
	},

	// =========================================================================
	// Test Plans
	// =========================================================================
	{
		Name:        toolTestPlans,
		Description: "List all test plans for a project",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema(nil, map[string]modules.Property{
			"project": propProject,
		}),
	},
	{
		Name:        toolTestPlan,
		Description: "Get a test plan by ID",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"testPlanId"}, map[string]modules.Property{
			"project":    propProject,
			"testPlanId": propTestPlanID,
		}),
	},
	{
		Name:        toolTestSuites,
		Description: "List all test suites for a test plan",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"testPlanId"}, map[string]modules.Property{
			"project":    propProject,
			"testPlanId": propTestPlanID,
		}),
	},
	{
		Name:        toolTestSuite,
		Description: "Get a test suite by ID",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"testPlanId", "testSuiteId"}, map[string]modules.Property{
			"project":     propProject,
			"testPlanId":  propTestPlanID,
			"testSuiteId": propTestSuiteID,
		}),
	},
	{
		Name:        toolTestCases,
		Description: "List all test cases for a test suite",
		Annotations: modules.AnnotateReadOnly,
		InputSchema: schema([]string{"testPlanId", "testSuiteId"}, map[string]modules.Property{
			"project":     propProject,
			"testPlanId":  propTestPlanID,
			"testSuiteId": propTestSuiteID,
		}),
	},
}
