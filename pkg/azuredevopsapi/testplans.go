package azuredevopsapi

import (
	"context"
	"net/http"
)

// GetTestPlans lists the test plans of a project.
func (c *Client) GetTestPlans(ctx context.Context, project string) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    "_apis/testplan/plans",
	})
}

// GetTestPlan returns one test plan.
func (c *Client) GetTestPlan(ctx context.Context, project string, planID int) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/testplan/plans/%d", planID),
	})
}

// GetTestSuites lists the suites of a test plan.
func (c *Client) GetTestSuites(ctx context.Context, project string, planID int) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/testplan/plans/%d/suites", planID),
	})
}

// GetTestSuite returns one suite of a test plan.
func (c *Client) GetTestSuite(ctx context.Context, project string, planID, suiteID int) (Object, error) {
	return c.object(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/testplan/plans/%d/suites/%d", planID, suiteID),
	})
}

// GetTestCases lists the test cases of a suite.
func (c *Client) GetTestCases(ctx context.Context, project string, planID, suiteID int) ([]Object, error) {
	return c.list(ctx, request{
		method:  http.MethodGet,
		project: project,
		path:    pathf("_apis/testplan/plans/%d/suites/%d/TestCase", planID, suiteID),
	})
}
