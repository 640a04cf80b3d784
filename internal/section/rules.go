package section

// DefaultRules is the heading table for the platform's policy documents:
// terms and conditions, privacy, returns and refunds, cancellation and the
// influencer programme. Order matters since the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		// Terms & Conditions
		MustRule("About the Terms", `1\. ABOUT THE TERMS`),
		MustRule("Account Registration & Termination", `2\. ACCOUNT REGISTRATION, SUSPENSION AND TERMINATION`),
		MustRule("Placing Orders & Financial Terms", `3\. PLACING ORDERS AND FINANCIAL TERMS`),
		MustRule("Use of the Platform", `4\. USE OF THE PLATFORM`),
		MustRule("Fair Usage Policy", `5\. FAIR USAGE POLICY`),
		MustRule("Accuracy & Completeness of Information", `6\. ACCURACY AND COMPLETENESS OF INFORMATION`),
		MustRule("Listing & Selling", `7\. LISTING AND SELLING`),
		MustRule("User Information & Third-Party Tools", `8\. USER INFORMATION AND THIRD-PARTY TOOLS`),
		MustRule("Intellectual Property & Infringement", `9\. INTELLECTUAL PROPERTY \(IP\) AND IP INFRINGEMENT`),
		MustRule("Liabilities & Disclaimers", `10\. DISCLAIMER AND LIABILITIES`),
		MustRule("Contact Company", `11\. CONTACT COMPANY`),
		MustRule("Miscellaneous & Legal Jurisdiction", `12\. MISCELLANEOUS PROVISIONS APPLICABLE TO AGREEMENT`),

		// Privacy Policy
		MustRule("Privacy Policy Overview", `PRIVACY POLICY`),
		MustRule("Applicability of the Policy", `1\. APPLICABILITY OF THE POLICY`),
		MustRule("Collection of Information", `2\. COLLECTION OF THE INFORMATION`),
		MustRule("Use of Information", `3\. USE OF THE INFORMATION`),
		MustRule("Sharing of Information", `4\. SHARING OF THE INFORMATION`),
		MustRule("Third-Party Links & Services", `5\. THIRD PARTY LINKS AND SERVICES`),
		MustRule("Security Precautions", `8\. SECURITY PRECAUTIONS`),
		MustRule("Data Retention", `10\. DATA RETENTION`),
		MustRule("Changes to the Privacy Policy", `13\. CHANGES TO THIS PRIVACY POLICY`),
		MustRule("Grievance Officer", `14\. GRIEVANCE OFFICER`),

		// Returns, Exchange & Refunds
		MustRule("Returns Overview", `RETURNS, EXCHANGE AND REFUNDS POLICY`),
		MustRule("Return options", `RETURN OPTIONS`),
		MustRule("Exchange", `EXCHANGE`),
		MustRule("Refund Queries", `REFUND QUERIES`),
		MustRule("Refund Timelines", `WHEN WILL I GET MY REFUND`),
		MustRule("Instant Refunds", `INSTANT REFUND`),
		MustRule("Return Eligibility", `COMMON GUIDELINES FOR RETURN AND EXCHANGE`),

		// Cancellation
		MustRule("Cancellation Overview", `CANCELLATION POLICY`),
		MustRule("User Cancellation", `CANCELLATION BY THE USER`),
		MustRule("Supplier Cancellation", `CANCELLATION BY THE SUPPLIER`),
		MustRule("Ecom Cancellation", `CANCELLATION BY ECOM`),
		MustRule("Refunds After Cancellation", `REFUNDS AFTER ORDER CANCELLATION`),
		MustRule("Refund Processing Time", `WHEN WILL THE USER GET THE REFUND AFTER CANCELLATION OF ORDER`),
		MustRule("Discount Vouchers & Offers", `WILL THE DISCOUNT VOUCHERS OR OTHER SUCH PROMOTIONAL OFFERS BE REINSTATED`),

		// Influencer Marketing
		MustRule("Influencer Marketing Program", `INFLUENCER MARKETING PROGRAM`),
	}
}
