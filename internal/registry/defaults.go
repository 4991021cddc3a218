package registry

// defaultSources covers the federal agencies plus the states the service
// ships with. Deployments override this with SOURCE_REGISTRY_PATH.
const defaultSources = `
sources:
  - jurisdiction: federal
    agency: irs
    apiEndpoint: https://api.irs.gov/forms
    scrapeUrl: https://www.irs.gov/forms-pubs
    ratePerSec: 2
    forms:
      - id: W-4
        title: Employee's Withholding Certificate
        type: tax
        priority: 10
      - id: W-2
        title: Wage and Tax Statement
        type: tax
        priority: 10
      - id: "941"
        title: Employer's Quarterly Federal Tax Return
        type: tax
        priority: 8
      - id: 1094-C
        title: Transmittal of Employer-Provided Health Insurance Offer
        type: benefits
        priority: 5
      - id: 1095-C
        title: Employer-Provided Health Insurance Offer and Coverage
        type: benefits
        priority: 5
      - id: W-9
        title: Request for Taxpayer Identification Number and Certification
        type: tax
        priority: 6
      - id: W-8BEN
        title: Certificate of Foreign Status of Beneficial Owner
        type: tax
        priority: 4
      - id: 1042-S
        title: Foreign Person's U.S. Source Income
        type: tax
        priority: 4
  - jurisdiction: federal
    agency: uscis
    scrapeUrl: https://www.uscis.gov/forms
    ratePerSec: 1
    forms:
      - id: I-9
        title: Employment Eligibility Verification
        type: employment
        priority: 10
  - jurisdiction: CA
    agency: edd
    apiEndpoint: https://api.edd.ca.gov/forms
    scrapeUrl: https://edd.ca.gov/en/payroll_taxes/forms_and_publications
    ratePerSec: 1
    forms:
      - id: DE-4
        title: Employee's Withholding Allowance Certificate
        type: tax
        priority: 7
      - id: DE-34
        title: Report of New Employee(s)
        type: compliance
        priority: 7
  - jurisdiction: NY
    agency: dtf
    scrapeUrl: https://www.tax.ny.gov/forms
    ratePerSec: 1
    forms:
      - id: IT-2104
        title: Employee's Withholding Allowance Certificate
        type: tax
        priority: 7
      - id: LS-54
        title: Notice and Acknowledgement of Pay Rate
        type: compliance
        priority: 6
  - jurisdiction: TX
    agency: twc
    scrapeUrl: https://www.twc.texas.gov/forms
    ratePerSec: 1
    forms:
      - id: C-1
        title: Status Report
        type: compliance
        priority: 6
`
