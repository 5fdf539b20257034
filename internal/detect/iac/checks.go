package iac

import (
	"regexp"
	"strings"
)

// Check describes one kind of insecure configuration.
type Check struct {
	Type           string
	Severity       Severity
	Description    string
	Recommendation string
	Weight         float64
}

var (
	CheckAssumeRole = Check{
		Type:           "OverlyPermissiveAssumeRolePolicy",
		Severity:       High,
		Description:    "IAM role has overly permissive assume role policy",
		Recommendation: "Restrict assume role policy to specific principals",
		Weight:         0.8,
	}
	CheckWildcardAction = Check{
		Type:           "WildcardAction",
		Severity:       Critical,
		Description:    "IAM policy uses wildcard action (*)",
		Recommendation: "Replace wildcard actions with specific actions",
		Weight:         0.9,
	}
	CheckWildcardResource = Check{
		Type:           "WildcardResource",
		Severity:       High,
		Description:    "IAM policy uses wildcard resource (*)",
		Recommendation: "Replace wildcard resources with specific ARNs",
		Weight:         0.8,
	}
	CheckPublicBucket = Check{
		Type:           "PublicS3Bucket",
		Severity:       Critical,
		Description:    "S3 bucket allows public access",
		Recommendation: "Enable public access block settings",
		Weight:         0.9,
	}
	CheckUnencryptedBucket = Check{
		Type:           "UnencryptedS3Bucket",
		Severity:       Medium,
		Description:    "S3 bucket does not have encryption enabled",
		Recommendation: "Enable server-side encryption for S3 bucket",
		Weight:         0.6,
	}
	CheckOpenSecurityGroup = Check{
		Type:           "OpenSecurityGroup",
		Severity:       High,
		Description:    "Security group allows access from anywhere (0.0.0.0/0)",
		Recommendation: "Restrict security group rules to specific IP ranges",
		Weight:         0.9,
	}
	CheckFirebaseOpen = Check{
		Type:           "OverlyPermissiveFirebaseRules",
		Severity:       Critical,
		Description:    "allows unrestricted read/write access",
		Recommendation: "Restrict access rules to authenticated users and specific conditions",
		Weight:         0.9,
	}
	CheckFirebaseAuth = Check{
		Type:           "MissingAuthenticationCheck",
		Severity:       High,
		Description:    "rule may allow unauthenticated access",
		Recommendation: "Add authentication checks to access rules",
		Weight:         0.7,
	}
	CheckHardcodedKey = Check{
		Type:           "HardcodedApiKey",
		Severity:       Critical,
		Description:    "Hardcoded API key detected",
		Recommendation: "Move API key to environment variables or secure secret management system",
		Weight:         1.0,
	}
)

// The patterns below accept HCL (key = value), JSON ("Key": value) and YAML
// (Key: value) spellings of the same setting.
var (
	wildcardAction   = regexp.MustCompile(`(?i)"?\bactions?"?\s*[:=]\s*\[?\s*(?:-\s*)?["']?\*["']?(?:\s|,|\]|\}|$)`)
	wildcardResource = regexp.MustCompile(`(?i)"?\bresources?"?\s*[:=]\s*\[?\s*(?:-\s*)?["']?\*["']?(?:\s|,|\]|\}|$)`)
	wildcardAWS      = regexp.MustCompile(`(?i)"?\b(?:aws|principals?|identifiers)"?\s*[:=]\s*\[?\s*(?:-\s*)?["']?\*["']?(?:\s|,|\]|\}|$)`)
	publicBlockOff   = regexp.MustCompile(`(?i)"?(?:block_?public_?acls|block_?public_?policy|ignore_?public_?acls|restrict_?public_?buckets)"?\s*[:=]\s*["']?false\b`)
	publicACL        = regexp.MustCompile(`(?i)"?(?:acl|access_?control)"?\s*[:=]\s*["']?public-?read`)
	openCIDR         = regexp.MustCompile(`0\.0\.0\.0/0|::/0`)
)

// AssumeRoleTooOpen reports an allow statement whose principal is "*".
func AssumeRoleTooOpen(text string) (string, bool) {
	if !strings.Contains(text, "Allow") {
		return "", false
	}
	if loc := wildcardAWS.FindString(text); loc != "" {
		return "wildcard principal: " + strings.TrimSpace(loc), true
	}
	return "", false
}

func WildcardAction(text string) (string, bool) {
	if m := wildcardAction.FindString(text); m != "" {
		return "wildcard action: " + strings.TrimSpace(m), true
	}
	return "", false
}

func WildcardResource(text string) (string, bool) {
	if m := wildcardResource.FindString(text); m != "" {
		return "wildcard resource: " + strings.TrimSpace(m), true
	}
	return "", false
}

// PublicBucket reports a disabled public access block or a public ACL.
func PublicBucket(text string) (string, bool) {
	if m := publicBlockOff.FindString(text); m != "" {
		return "public access block disabled: " + strings.TrimSpace(m), true
	}
	if m := publicACL.FindString(text); m != "" {
		return "public ACL: " + strings.TrimSpace(m), true
	}
	return "", false
}

// Unencrypted reports bucket text without any encryption setting.
func Unencrypted(text string) (string, bool) {
	if strings.Contains(strings.ToLower(text), "encryption") {
		return "", false
	}
	return "no server-side encryption configured", true
}

func OpenIngress(text string) (string, bool) {
	if m := openCIDR.FindString(text); m != "" {
		return "ingress open to " + m, true
	}
	return "", false
}

type checkRule struct {
	check Check
	test  func(string) (string, bool)
}

var checksByType = map[EntityType][]checkRule{
	IamRole:       {{CheckAssumeRole, AssumeRoleTooOpen}},
	IamPolicy:     {{CheckWildcardAction, WildcardAction}, {CheckWildcardResource, WildcardResource}},
	S3Bucket:      {{CheckPublicBucket, PublicBucket}, {CheckUnencryptedBucket, Unencrypted}},
	SecurityGroup: {{CheckOpenSecurityGroup, OpenIngress}},
}

// Evaluate runs the checks for e against the entity's configuration text.
func Evaluate(e *Entity, text string) []*Vulnerability {
	var out []*Vulnerability
	for _, c := range checksByType[e.Type] {
		reason, hit := c.test(text)
		if !hit {
			continue
		}
		out = append(out, NewVulnerability(c.check, e.ID, e.Name, e.OriginFile, e.OriginLine, reason))
	}
	return out
}
