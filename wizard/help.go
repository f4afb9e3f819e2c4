package wizard

import "cardiopredict/clinical"

var fieldHelp = map[clinical.Field]string{
	clinical.FieldAge:               "Age in years, for example 45.",
	clinical.FieldSex:               "Biological sex: Male or Female.",
	clinical.FieldRestingBP:         "Systolic blood pressure at rest in mm Hg. About 120 is normal, 140 and above is high.",
	clinical.FieldCholesterol:       "Serum cholesterol in mg/dl. Below 200 is normal, above 240 is high.",
	clinical.FieldMaxHeartRate:      "Highest heart rate reached during exercise, in beats per minute. Roughly 220 minus age; a low maximum can be a warning sign.",
	clinical.FieldOldpeak:           "ST depression induced by exercise relative to rest, read from the ECG. Usually between 0 and 6; above 1.5 suggests strain.",
	clinical.FieldChestPainType:     "TA: typical angina, brought on by effort. ATA: atypical angina. NAP: non-anginal pain. ASY: no pain at all, which can still hide disease.",
	clinical.FieldRestingECG:        "Normal: no findings. ST: ST-T wave abnormality. LVH: thickened left ventricle wall, often from high blood pressure.",
	clinical.FieldFastingBloodSugar: "Yes if fasting blood sugar is above 120 mg/dl.",
	clinical.FieldExerciseAngina:    "Yes if walking fast or running brings on chest pain.",
	clinical.FieldSTSlope:           "Shape of the ST segment at peak exercise. Up is normal; Flat or Down can point to blocked arteries.",
}

// Help is the explanation shown next to field's input. Unknown fields have none.
func Help(field clinical.Field) string {
	return fieldHelp[field]
}
