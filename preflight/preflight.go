// Package preflight checks, before any data is touched, that a principal may call
// every DynamoDB and S3 action moviecat needs.
package preflight

import (
	"context"
	"fmt"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/gurre/moviecat/aws"
)

// Target names the resources the catalog runs against.
type Target struct {
	Region     string
	AccountID  string
	Table      string
	GenreIndex string
	Bucket     string
}

// Check is one action simulated on one resource.
type Check struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Decision string `json:"decision"`
}

// Allowed reports whether IAM allowed the action.
func (c Check) Allowed() bool {
	return c.Decision == string(types.PolicyEvaluationDecisionTypeAllowed)
}

// Result lists every simulated action.
type Result struct {
	PrincipalARN string  `json:"principalArn"`
	Checks       []Check `json:"checks"`
}

// Denied returns the checks that were not allowed.
func (r Result) Denied() []Check {
	var denied []Check
	for _, c := range r.Checks {
		if !c.Allowed() {
			denied = append(denied, c)
		}
	}
	return denied
}

// OK reports whether every action was allowed.
func (r Result) OK() bool { return len(r.Denied()) == 0 }

// requirement groups actions that share a resource ARN.
type requirement struct {
	resource string
	actions  []string
}

func requirements(t Target) []requirement {
	tableARN := fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", t.Region, t.AccountID, t.Table)
	return []requirement{
		{tableARN, []string{
			"dynamodb:GetItem",
			"dynamodb:PutItem",
			"dynamodb:DeleteItem",
			"dynamodb:Scan",
			"dynamodb:BatchWriteItem",
		}},
		{tableARN + "/index/" + t.GenreIndex, []string{"dynamodb:Query"}},
		{"arn:aws:s3:::" + t.Bucket, []string{"s3:ListBucket"}},
		{"arn:aws:s3:::" + t.Bucket + "/*", []string{
			"s3:GetObject",
			"s3:PutObject",
			"s3:DeleteObject",
		}},
	}
}

// Run simulates every required action for principalARN.
func Run(ctx context.Context, client aws.IAMClient, principalARN string, t Target) (Result, error) {
	if principalARN == "" {
		return Result{}, fmt.Errorf("principal ARN is required")
	}
	if t.Region == "" || t.AccountID == "" || t.Table == "" || t.Bucket == "" {
		return Result{}, fmt.Errorf("region, account id, table and bucket are required")
	}
	if t.GenreIndex == "" {
		return Result{}, fmt.Errorf("genre index is required")
	}

	res := Result{PrincipalARN: principalARN}
	for _, req := range requirements(t) {
		p := iam.NewSimulatePrincipalPolicyPaginator(client, &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: awssdk.String(principalARN),
			ActionNames:     req.actions,
			ResourceArns:    []string{req.resource},
		})
		for p.HasMorePages() {
			out, err := p.NextPage(ctx)
			if err != nil {
				return Result{}, fmt.Errorf("failed to simulate policy for %s: %w", req.resource, err)
			}
			for _, r := range out.EvaluationResults {
				res.Checks = append(res.Checks, Check{
					Action:   awssdk.ToString(r.EvalActionName),
					Resource: req.resource,
					Decision: string(r.EvalDecision),
				})
			}
		}
	}

	sort.SliceStable(res.Checks, func(i, j int) bool {
		if res.Checks[i].Resource != res.Checks[j].Resource {
			return res.Checks[i].Resource < res.Checks[j].Resource
		}
		return res.Checks[i].Action < res.Checks[j].Action
	})
	return res, nil
}
