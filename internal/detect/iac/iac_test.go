package iac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repograph/internal/crawler"
	"repograph/internal/finding"
	"repograph/internal/rules"
)

func newTestDetector() *Detector {
	return NewDetector(rules.Default(), finding.DefaultThreshold, zerolog.Nop())
}

func fixture(t *testing.T, name, path string) crawler.File {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return crawler.File{Path: path, Content: content}
}

func byName(entities []*Entity) map[string]*Entity {
	out := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		out[e.Name] = e
	}
	return out
}

func vulnTypes(vulns []*Vulnerability, entityID string) []string {
	var out []string
	for _, v := range vulns {
		if v.EntityID == entityID {
			out = append(out, v.Type)
		}
	}
	return out
}

func TestTerraform(t *testing.T) {
	res := newTestDetector().DetectFile(fixture(t, "main.tf", "infra/main.tf"))
	got := byName(res.Entities)
	require.Len(t, res.Entities, 6, "unmapped resource types are ignored")

	t.Run("Entities carry type, line and region", func(t *testing.T) {
		role := got["lambda_exec"]
		require.NotNil(t, role)
		assert.Equal(t, IamRole, role.Type)
		assert.Equal(t, 5, role.OriginLine)
		require.NotNil(t, role.Region)
		assert.Equal(t, "eu-west-1", *role.Region)
		assert.Equal(t, 1.0, role.Confidence)

		fn := got["orders"]
		require.NotNil(t, fn)
		assert.Equal(t, LambdaFunction, fn.Type)
		assert.Equal(t, "nodejs18.x", fn.ConfigString("runtime"))
		assert.Equal(t, "lambda_exec", fn.ConfigString("role"))
	})

	t.Run("Bucket arn from bucket name", func(t *testing.T) {
		b := got["uploads"]
		require.NotNil(t, b)
		require.NotNil(t, b.Arn)
		assert.Equal(t, "arn:aws:s3:::acme-uploads", *b.Arn)
	})

	t.Run("Vulnerabilities", func(t *testing.T) {
		assert.Equal(t, []string{"OverlyPermissiveAssumeRolePolicy"}, vulnTypes(res.Vulnerabilities, got["lambda_exec"].ID))
		assert.Equal(t, []string{"WildcardAction", "WildcardResource"}, vulnTypes(res.Vulnerabilities, got["admin"].ID))
		assert.Equal(t, []string{"PublicS3Bucket", "UnencryptedS3Bucket"}, vulnTypes(res.Vulnerabilities, got["uploads"].ID))
		assert.Empty(t, vulnTypes(res.Vulnerabilities, got["logs"].ID), "encryption set by a separate resource counts")
		assert.Equal(t, []string{"OpenSecurityGroup"}, vulnTypes(res.Vulnerabilities, got["web"].ID))
		assert.Len(t, res.Vulnerabilities, 6)
	})

	t.Run("Severities", func(t *testing.T) {
		for _, v := range res.Vulnerabilities {
			switch v.Type {
			case "WildcardAction", "PublicS3Bucket":
				assert.Equal(t, Critical, v.Severity)
			case "UnencryptedS3Bucket":
				assert.Equal(t, Medium, v.Severity)
			default:
				assert.Equal(t, High, v.Severity)
			}
			assert.NotEmpty(t, v.Evidence)
			assert.Greater(t, v.Confidence, 0.0)
		}
	})

	t.Run("Lambda uses its role", func(t *testing.T) {
		rels := LinkRoles(res.Entities)
		require.Len(t, rels, 1)
		assert.Equal(t, got["orders"].ID, rels[0].SourceID)
		assert.Equal(t, got["lambda_exec"].ID, rels[0].TargetID)
		assert.Equal(t, "uses", rels[0].RelationshipType)
		assert.Equal(t, []string{"assume_role"}, rels[0].Permissions)
	})
}

func TestTerraform_Malformed(t *testing.T) {
	f := crawler.File{Path: "broken.tf", Content: []byte(`resource "aws_s3_bucket" "x" {`)}
	res := newTestDetector().DetectFile(f)
	assert.Empty(t, res.Entities)
	assert.Empty(t, res.Vulnerabilities)
}

func TestCloudFormation(t *testing.T) {
	res := newTestDetector().DetectFile(fixture(t, "template.yaml", "template.yaml"))
	got := byName(res.Entities)
	require.Len(t, res.Entities, 3)

	role := got["ApiRole"]
	require.NotNil(t, role)
	assert.Equal(t, IamRole, role.Type)
	assert.Equal(t, 4, role.OriginLine)
	assert.Empty(t, vulnTypes(res.Vulnerabilities, role.ID), "service principal is not a wildcard")

	fn := got["ApiFunction"]
	require.NotNil(t, fn)
	assert.Equal(t, LambdaFunction, fn.Type)
	assert.Equal(t, "ApiRole", fn.ConfigString("role"))
	assert.Equal(t, "sam", fn.ConfigString("template"))

	bucket := got["ReportsBucket"]
	require.NotNil(t, bucket)
	assert.Equal(t, []string{"PublicS3Bucket", "UnencryptedS3Bucket"}, vulnTypes(res.Vulnerabilities, bucket.ID))

	rels := LinkRoles(res.Entities)
	require.Len(t, rels, 1)
	assert.Equal(t, role.ID, rels[0].TargetID)
}

func TestCloudFormation_JSON(t *testing.T) {
	src := `{
  "AWSTemplateFormatVersion": "2010-09-09",
  "Resources": {
    "AdminPolicy": {
      "Type": "AWS::IAM::Policy",
      "Properties": {"PolicyDocument": {"Statement": [{"Effect": "Allow", "Action": "*", "Resource": "arn:aws:s3:::data/*"}]}}
    }
  }
}`
	res := newTestDetector().DetectFile(crawler.File{Path: "stack.json", Content: []byte(src)})
	require.Len(t, res.Entities, 1)
	assert.Equal(t, IamPolicy, res.Entities[0].Type)
	assert.Equal(t, []string{"WildcardAction"}, vulnTypes(res.Vulnerabilities, res.Entities[0].ID))
}

func TestServerless(t *testing.T) {
	res := newTestDetector().DetectFile(fixture(t, "serverless.yml", "serverless.yml"))
	got := byName(res.Entities)
	require.Len(t, res.Entities, 3)

	charge := got["charge"]
	require.NotNil(t, charge)
	assert.Equal(t, "nodejs20.x", charge.ConfigString("runtime"), "provider runtime applies")
	assert.Equal(t, "nodejs18.x", got["refund"].ConfigString("runtime"))
	require.NotNil(t, charge.Region)
	assert.Equal(t, "us-east-2", *charge.Region)

	policy := got["billing-iam-role-statements"]
	require.NotNil(t, policy)
	assert.Equal(t, []string{"WildcardAction"}, vulnTypes(res.Vulnerabilities, policy.ID))
}

func TestFirebaseRules(t *testing.T) {
	res := newTestDetector().DetectFile(fixture(t, "firestore.rules", "firestore.rules"))
	require.Len(t, res.Entities, 1)
	e := res.Entities[0]
	assert.Equal(t, FirebaseRules, e.Type)
	assert.Equal(t, "firestore.rules (Firestore Rules)", e.Name)
	assert.Equal(t, "Firestore Rules", e.ConfigString("rule_type"))

	require.Len(t, res.Vulnerabilities, 2)
	assert.Equal(t, "OverlyPermissiveFirebaseRules", res.Vulnerabilities[0].Type)
	assert.Equal(t, Critical, res.Vulnerabilities[0].Severity)
	assert.Equal(t, 5, res.Vulnerabilities[0].OriginLine)
	assert.Equal(t, "MissingAuthenticationCheck", res.Vulnerabilities[1].Type)
	assert.Equal(t, "Firestore Rules rule may allow unauthenticated access", res.Vulnerabilities[1].Description)
}

func TestEnvAndSecurityConfig(t *testing.T) {
	d := newTestDetector()

	t.Run("Environment file keeps names only", func(t *testing.T) {
		f := crawler.File{Path: ".env.example", Content: []byte("# comment\nDATABASE_URL=postgres://x\nexport STRIPE_SECRET_KEY=sk_test_123\n")}
		res := d.DetectFile(f)
		require.Len(t, res.Entities, 1)
		e := res.Entities[0]
		assert.Equal(t, EnvironmentConfig, e.Type)
		assert.Equal(t, []string{"DATABASE_URL", "STRIPE_SECRET_KEY"}, e.Configuration["variables"])
		assert.Equal(t, true, e.Configuration["has_secrets"])
		assert.NotContains(t, e.Trail(), "sk_test_123")
	})

	t.Run("Security config is parsed", func(t *testing.T) {
		f := crawler.File{Path: "config/security.yaml", Content: []byte("cors:\n  origins: ['*']\n")}
		res := d.DetectFile(f)
		require.Len(t, res.Entities, 1)
		assert.Equal(t, SecurityConfig, res.Entities[0].Type)
		assert.Equal(t, "yaml", res.Entities[0].ConfigString("config_type"))
	})

	t.Run("Unrelated files yield nothing", func(t *testing.T) {
		res := d.DetectFile(crawler.File{Path: "src/index.ts", Content: []byte("export const x = 1\n")})
		assert.Empty(t, res.Entities)
	})
}

func TestChecks(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) (string, bool)
		text string
		want bool
	}{
		{"json action", WildcardAction, `{"Action": "*", "Effect": "Allow"}`, true},
		{"yaml action list", WildcardAction, "Action:\n  - '*'\n", true},
		{"scoped action", WildcardAction, `Action = "s3:*"`, false},
		{"hcl resource", WildcardResource, `Resource = ["*"]`, true},
		{"specific resource", WildcardResource, `"Resource": "arn:aws:s3:::b/*"`, false},
		{"public acl", PublicBucket, `acl = "public-read"`, true},
		{"private acl", PublicBucket, `acl = "private"`, false},
		{"ipv6 open", OpenIngress, `ipv6_cidr_blocks = ["::/0"]`, true},
		{"office range", OpenIngress, `cidr_blocks = ["10.0.0.0/8"]`, false},
		{"encrypted", Unencrypted, "BucketEncryption:\n  ServerSideEncryptionConfiguration: []", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, hit := tc.fn(tc.text)
			assert.Equal(t, tc.want, hit)
		})
	}
}

func TestEntityBasics(t *testing.T) {
	a := NewEntity(S3Bucket, "logs", ProviderAWS, "main.tf", 3, map[string]any{"region": "us-east-1"})
	b := NewEntity(S3Bucket, "logs", ProviderAWS, "main.tf", 9, nil)
	assert.Equal(t, a.ID, b.ID, "ids derive from the natural key")
	require.NotNil(t, a.Region)
	assert.Equal(t, "us-east-1", *a.Region)

	_, err := ParseEntityType("Queue")
	assert.ErrorIs(t, err, ErrUnknownEntityType)
	typ, err := ParseEntityType("IamRole")
	require.NoError(t, err)
	assert.Equal(t, IamRole, typ)

	assert.Less(t, Critical.Rank(), High.Rank())
	assert.Less(t, Low.Rank(), Info.Rank())
}
