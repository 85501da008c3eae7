package preflight

import (
	"context"
	"errors"
	"strings"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type fakeIAM struct {
	denied map[string]bool // action -> denied
	inputs []*iam.SimulatePrincipalPolicyInput
	err    error
}

func (f *fakeIAM) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	out := &iam.SimulatePrincipalPolicyOutput{}
	for _, action := range params.ActionNames {
		decision := types.PolicyEvaluationDecisionTypeAllowed
		if f.denied[action] {
			decision = types.PolicyEvaluationDecisionTypeImplicitDeny
		}
		out.EvaluationResults = append(out.EvaluationResults, types.EvaluationResult{
			EvalActionName: awssdk.String(action),
			EvalDecision:   decision,
		})
	}
	return out, nil
}

var target = Target{
	Region:     "eu-west-1",
	AccountID:  "123456789012",
	Table:      "Movies",
	GenreIndex: "genre-index",
	Bucket:     "moviecat-media",
}

func TestRunAllAllowed(t *testing.T) {
	client := &fakeIAM{}
	res, err := Run(context.Background(), client, "arn:aws:iam::123456789012:role/app", target)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Errorf("expected every action allowed, denied: %+v", res.Denied())
	}
	if len(res.Checks) != 10 {
		t.Errorf("got %d checks, want 10", len(res.Checks))
	}

	resources := map[string]bool{}
	for _, in := range client.inputs {
		if awssdk.ToString(in.PolicySourceArn) != "arn:aws:iam::123456789012:role/app" {
			t.Errorf("PolicySourceArn = %q", awssdk.ToString(in.PolicySourceArn))
		}
		resources[in.ResourceArns[0]] = true
	}
	for _, want := range []string{
		"arn:aws:dynamodb:eu-west-1:123456789012:table/Movies",
		"arn:aws:dynamodb:eu-west-1:123456789012:table/Movies/index/genre-index",
		"arn:aws:s3:::moviecat-media",
		"arn:aws:s3:::moviecat-media/*",
	} {
		if !resources[want] {
			t.Errorf("resource %s was not simulated", want)
		}
	}
}

func TestRunReportsDenied(t *testing.T) {
	client := &fakeIAM{denied: map[string]bool{"s3:DeleteObject": true, "dynamodb:Query": true}}
	res, err := Run(context.Background(), client, "arn:aws:iam::123456789012:role/app", target)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OK() {
		t.Fatal("expected denied actions")
	}
	denied := res.Denied()
	if len(denied) != 2 {
		t.Fatalf("denied = %+v, want 2", denied)
	}
	// Sorted by resource: the index ARN sorts before the bucket ARNs.
	if denied[0].Action != "dynamodb:Query" || !strings.HasSuffix(denied[0].Resource, "/index/genre-index") {
		t.Errorf("denied[0] = %+v", denied[0])
	}
	if denied[1].Action != "s3:DeleteObject" || denied[1].Resource != "arn:aws:s3:::moviecat-media/*" {
		t.Errorf("denied[1] = %+v", denied[1])
	}
}

func TestRunValidatesInput(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		target    Target
	}{
		{"no principal", "", target},
		{"no account", "arn:aws:iam::1:role/app", Target{Region: "r", Table: "t", GenreIndex: "g", Bucket: "b"}},
		{"no bucket", "arn:aws:iam::1:role/app", Target{Region: "r", AccountID: "1", Table: "t", GenreIndex: "g"}},
		{"no index", "arn:aws:iam::1:role/app", Target{Region: "r", AccountID: "1", Table: "t", Bucket: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Run(context.Background(), &fakeIAM{}, tt.principal, tt.target); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRunSurfacesIAMErrors(t *testing.T) {
	boom := errors.New("AccessDenied: iam:SimulatePrincipalPolicy")
	_, err := Run(context.Background(), &fakeIAM{err: boom}, "arn:aws:iam::1:role/app", target)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
}
